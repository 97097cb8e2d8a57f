package handler

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

type addItemRequest struct {
	ProductID string
	Quantity  int
}

func (req *addItemRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "productId":
			req.ProductID, err = d.Str()
		case "quantity":
			req.Quantity, err = d.Int()
		default:
			return d.Skip()
		}
		return errors.Wrapf(err, "decode field %q", key)
	})
}

type updateItemRequest struct {
	Quantity int
}

func (req *updateItemRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "quantity" {
			return d.Skip()
		}
		v, err := d.Int()
		if err != nil {
			return errors.Wrap(err, `decode field "quantity"`)
		}
		req.Quantity = v
		return nil
	})
}

type finalizeRequest struct {
	ShippingAddress string
	PaymentToken    string
}

func (req *finalizeRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "shippingAddress":
			req.ShippingAddress, err = d.Str()
		case "paymentToken":
			req.PaymentToken, err = d.Str()
		default:
			return d.Skip()
		}
		return errors.Wrapf(err, "decode field %q", key)
	})
}
