package store

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/arvel-dev/backend-pricing/internal/condition"
	"github.com/arvel-dev/backend-pricing/internal/money"
	"github.com/arvel-dev/backend-pricing/internal/order"
)

// adjustmentDTO is the jsonb shape of one stored adjustment.
type adjustmentDTO struct {
	Type       string `json:"type"`
	Label      string `json:"label"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	SourceID   string `json:"source_id,omitempty"`
	Percentage string `json:"percentage,omitempty"`
	Included   bool   `json:"included,omitempty"`
	Locked     bool   `json:"locked,omitempty"`
}

func encodeAdjustments(adjustments []order.Adjustment) ([]byte, error) {
	dtos := make([]adjustmentDTO, 0, len(adjustments))
	for _, adj := range adjustments {
		dto := adjustmentDTO{
			Type:     string(adj.Type),
			Label:    adj.Label,
			Amount:   adj.Amount.Amount().String(),
			Currency: adj.Amount.CurrencyCode(),
			SourceID: adj.SourceID,
			Included: adj.Included,
			Locked:   adj.Locked,
		}
		if !adj.Percentage.IsZero() {
			dto.Percentage = adj.Percentage.String()
		}
		dtos = append(dtos, dto)
	}
	return json.Marshal(dtos)
}

func decodeAdjustments(raw []byte) ([]order.Adjustment, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var dtos []adjustmentDTO
	if err := json.Unmarshal(raw, &dtos); err != nil {
		return nil, fmt.Errorf("decode adjustments: %w", err)
	}
	adjustments := make([]order.Adjustment, 0, len(dtos))
	for _, dto := range dtos {
		amount, err := money.FromString(dto.Amount, dto.Currency)
		if err != nil {
			return nil, fmt.Errorf("decode adjustment %q: %w", dto.Label, err)
		}
		adj := order.Adjustment{
			Type:     order.AdjustmentType(dto.Type),
			Label:    dto.Label,
			Amount:   amount,
			SourceID: dto.SourceID,
			Included: dto.Included,
			Locked:   dto.Locked,
		}
		if dto.Percentage != "" {
			adj.Percentage, err = decimal.NewFromString(dto.Percentage)
			if err != nil {
				return nil, fmt.Errorf("decode adjustment %q percentage: %w", dto.Label, err)
			}
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, nil
}

func encodeConditions(conditions []condition.Condition) ([]byte, error) {
	stored, err := condition.Encode(conditions)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stored)
}

func (s *Store) decodeConditions(raw []byte) ([]condition.Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var stored []condition.StoredCondition
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	return s.registry().Decode(stored)
}
