// Package handler exposes cart pricing over HTTP.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/oolio-discount-engine/internal/domain/cart"
)

const maxBodyBytes = 1 << 20

// CartPricer prices a cart. Implemented by cart.Service.
type CartPricer interface {
	PriceCart(ctx context.Context, req cart.PriceRequest) (*cart.Result, error)
}

// Handler serves the cart pricing endpoint.
type Handler struct {
	carts CartPricer
}

// New constructs a Handler.
func New(carts CartPricer) *Handler {
	return &Handler{carts: carts}
}

// PriceCart handles POST /api/cart/price.
func (h *Handler) PriceCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return
	}

	req, err := decodePriceRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}

	result, err := h.carts.PriceCart(r.Context(), req)
	if err != nil {
		h.writePricingError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(encodeResult(result))
}

func (h *Handler) writePricingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cart.ErrEmptyItems),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrNegativePrice):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zctx.From(r.Context()).Error("price cart", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodePriceRequest parses the pricing request. Prices accept both JSON
// numbers and number strings to preserve decimal precision.
func decodePriceRequest(data []byte) (cart.PriceRequest, error) {
	var req cart.PriceRequest
	dec := jx.DecodeBytes(data)

	err := dec.Obj(func(dec *jx.Decoder, key string) error {
		switch key {
		case "couponCode":
			code, err := dec.Str()
			if err != nil {
				return err
			}
			req.CouponCode = code
			return nil
		case "items":
			return dec.Arr(func(dec *jx.Decoder) error {
				item, err := decodeItem(dec)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		default:
			return dec.Skip()
		}
	})
	return req, err
}

func decodeItem(dec *jx.Decoder) (cart.Item, error) {
	var item cart.Item
	err := dec.Obj(func(dec *jx.Decoder, key string) error {
		switch key {
		case "productId":
			v, err := dec.Str()
			item.ProductID = v
			return err
		case "name":
			v, err := dec.Str()
			item.Name = v
			return err
		case "categories":
			return dec.Arr(func(dec *jx.Decoder) error {
				v, err := dec.Str()
				if err != nil {
					return err
				}
				item.Categories = append(item.Categories, v)
				return nil
			})
		case "price":
			return decodeDecimal(dec, &item.Price)
		case "quantity":
			v, err := dec.Int()
			item.Quantity = v
			return err
		default:
			return dec.Skip()
		}
	})
	return item, err
}

func decodeDecimal(dec *jx.Decoder, out *decimal.Decimal) error {
	var raw string
	switch dec.Next() {
	case jx.String:
		s, err := dec.Str()
		if err != nil {
			return err
		}
		raw = s
	default:
		num, err := dec.Num()
		if err != nil {
			return err
		}
		raw = string(num)
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		return err
	}
	*out = v
	return nil
}

func encodeResult(result *cart.Result) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("originalTotal", func(e *jx.Encoder) { encodeDecimal(e, result.OriginalTotal) })
		e.Field("discountAmount", func(e *jx.Encoder) { encodeDecimal(e, result.DiscountAmount) })
		e.Field("finalTotal", func(e *jx.Encoder) { encodeDecimal(e, result.FinalTotal) })
		if result.AppliedCode != "" {
			e.Field("appliedCode", func(e *jx.Encoder) { e.Str(result.AppliedCode) })
		}
		e.Field("appliedDiscounts", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, det := range result.AppliedDiscounts {
					e.Obj(func(e *jx.Encoder) {
						e.Field("source", func(e *jx.Encoder) { e.Str(string(det.Source)) })
						e.Field("description", func(e *jx.Encoder) { e.Str(det.Description) })
						e.Field("amount", func(e *jx.Encoder) { encodeDecimal(e, det.Amount) })
						e.Field("percent", func(e *jx.Encoder) { encodeDecimal(e, det.Percent) })
					})
				}
			})
		})
	})
	return e.Bytes()
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func writeError(w http.ResponseWriter, code int, message string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
