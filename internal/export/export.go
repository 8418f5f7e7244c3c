// Package export renders admin data sets as CSV or JSON downloads.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sifrokapp/sifrok/internal/models"
)

type Type string

const (
	TypeOrders  Type = "orders"
	TypeUsers   Type = "users"
	TypeReviews Type = "reviews"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

var (
	ErrUnknownType   = errors.New("unknown export type")
	ErrUnknownFormat = errors.New("unknown export format")
)

func ParseType(raw string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(raw))); t {
	case "":
		return TypeOrders, nil
	case TypeOrders, TypeUsers, TypeReviews:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, raw)
	}
}

func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// File is a rendered export ready to be sent as an attachment.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f Format) contentType() string {
	if f == FormatJSON {
		return "application/json; charset=utf-8"
	}
	return "text/csv; charset=utf-8"
}

// FileName returns <type>_<YYYY-MM-DD>.<format> for the UTC date of now.
func FileName(t Type, f Format, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", t, now.UTC().Format("2006-01-02"), f)
}

var (
	orderHeader  = []string{"ID", "Fecha", "Cliente", "Email", "Total", "Estado", "Productos", "Direccion", "Ciudad", "Codigo Postal", "Pais", "Tracking"}
	userHeader   = []string{"ID", "Nombre", "Email", "Rol", "Fecha Registro", "Pedidos", "Reviews"}
	reviewHeader = []string{"ID", "Producto", "Usuario", "Email", "Rating", "Titulo", "Comentario", "Verificado", "Fecha"}
)

func Orders(orders []*models.Order, format Format, now time.Time) (*File, error) {
	if format == FormatJSON {
		return jsonFile(TypeOrders, orders, now)
	}

	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		items := make([]string, 0, len(o.Items))
		for _, item := range o.Items {
			items = append(items, fmt.Sprintf("%s x%d", item.ProductName, item.Quantity))
		}
		rows = append(rows, []string{
			o.ID.String(),
			timestamp(o.CreatedAt),
			o.ShippingName,
			o.ShippingEmail,
			decimal.New(o.TotalCents, -2).StringFixed(2),
			string(o.Status),
			strings.Join(items, "; "),
			o.ShippingAddress,
			o.ShippingCity,
			o.ShippingZipCode,
			o.ShippingCountry,
			o.TrackingNumber,
		})
	}
	return csvFile(TypeOrders, orderHeader, rows, now)
}

func Users(users []*models.User, format Format, now time.Time) (*File, error) {
	if format == FormatJSON {
		return jsonFile(TypeUsers, users, now)
	}

	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{
			u.ID,
			u.Name,
			u.Email,
			u.Role,
			timestamp(u.CreatedAt),
			strconv.Itoa(u.OrderCount),
			strconv.Itoa(u.ReviewCount),
		})
	}
	return csvFile(TypeUsers, userHeader, rows, now)
}

func Reviews(reviews []*models.Review, format Format, now time.Time) (*File, error) {
	if format == FormatJSON {
		return jsonFile(TypeReviews, reviews, now)
	}

	rows := make([][]string, 0, len(reviews))
	for _, r := range reviews {
		verified := "No"
		if r.IsVerified {
			verified = "Si"
		}
		rows = append(rows, []string{
			r.ID,
			r.ProductName,
			r.UserName,
			r.UserEmail,
			strconv.Itoa(r.Rating),
			r.Title,
			r.Comment,
			verified,
			timestamp(r.CreatedAt),
		})
	}
	return csvFile(TypeReviews, reviewHeader, rows, now)
}

func csvFile(t Type, header []string, rows [][]string, now time.Time) (*File, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write csv rows: %w", err)
	}
	return &File{Name: FileName(t, FormatCSV, now), ContentType: FormatCSV.contentType(), Data: buf.Bytes()}, nil
}

func jsonFile(t Type, v any, now time.Time) (*File, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s export: %w", t, err)
	}
	return &File{Name: FileName(t, FormatJSON, now), ContentType: FormatJSON.contentType(), Data: data}, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
