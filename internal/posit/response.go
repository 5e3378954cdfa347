package posit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

// flexString принимает строку, число или null. POSIT отдаёт идентификаторы в разных видах.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unexpected identifier %s", string(data))
	}
	*f = flexString(n.String())
	return nil
}

// quantity принимает остаток числом или строкой; дробная часть отбрасывается.
type quantity int

func (q *quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("unexpected quantity %s: %w", string(data), err)
	}
	*q = quantity(d.IntPart())
	return nil
}

type saleMessage struct {
	StoreID flexString `json:"store_id"`
	Invoice flexString `json:"invoice"`
	Message string     `json:"message"`
}

type saleResponse struct {
	Success *bool           `json:"success"`
	Message json.RawMessage `json:"message"`
}

// messages разбирает поле message: обычно это массив, но при ошибках встречается строка.
func (r saleResponse) messages() ([]saleMessage, error) {
	raw := bytes.TrimSpace(r.Message)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var list []saleMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	case '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		return []saleMessage{{Message: text}}, nil
	case '{':
		var single saleMessage
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, err
		}
		return []saleMessage{single}, nil
	default:
		return nil, fmt.Errorf("unexpected message field %s", string(raw))
	}
}

// parseSaleResponse разбирает ответ POST /api/sales.
// success=true без номера чека не считается ошибкой: отсутствие связки проверяется при возврате.
func parseSaleResponse(raw []byte) (domain.SaleAck, error) {
	var resp saleResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.SaleAck{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if resp.Success == nil {
		return domain.SaleAck{}, fmt.Errorf("%w: success field is missing", domain.ErrMalformedResponse)
	}
	messages, err := resp.messages()
	if err != nil {
		return domain.SaleAck{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	var first saleMessage
	if len(messages) > 0 {
		first = messages[0]
	}
	if !*resp.Success {
		text := first.Message
		if text == "" {
			text = "no message"
		}
		return domain.SaleAck{}, fmt.Errorf("%w: %s", domain.ErrRemoteRejected, text)
	}

	return domain.SaleAck{
		InvoiceID: string(first.Invoice),
		StoreID:   string(first.StoreID),
		Message:   first.Message,
	}, nil
}

type inventoryRow struct {
	Code    flexString `json:"code"`
	Store   quantity   `json:"store_inventory"`
	Company quantity   `json:"company_inventory"`
}

type inventoryResponse struct {
	Response []inventoryRow `json:"response"`
}

// parseInventoryResponse разбирает ответ GET /api/inventory. Строки без кода пропускаются.
func parseInventoryResponse(raw []byte) ([]domain.InventoryItem, error) {
	var resp inventoryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	items := make([]domain.InventoryItem, 0, len(resp.Response))
	for _, row := range resp.Response {
		if row.Code == "" {
			continue
		}
		items = append(items, domain.InventoryItem{
			SKU:     string(row.Code),
			Store:   int(row.Store),
			Company: int(row.Company),
		})
	}
	return items, nil
}
