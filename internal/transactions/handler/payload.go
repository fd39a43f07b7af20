package handler

import (
	"fmt"
	"time"

	"github.com/Giozar/distributed-systems/internal/microservices/tcp"
	"github.com/Giozar/distributed-systems/internal/transactions/models"
	"github.com/Giozar/distributed-systems/internal/transactions/service"
)

// toPayload converts a transaction into the map carried in a message payload.
// Dates travel as RFC 3339 strings.
func toPayload(tx *models.Transaction) map[string]any {
	m := map[string]any{
		"id":         tx.ID,
		"type":       tx.Type,
		"amount":     tx.Amount,
		"title":      tx.Title,
		"date":       tx.Date.Format(time.RFC3339Nano),
		"created_at": tx.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": tx.UpdatedAt.Format(time.RFC3339Nano),
	}
	if tx.PaymentMethod != "" {
		m["payment_method"] = tx.PaymentMethod
	}
	if tx.Category != "" {
		m["category"] = tx.Category
	}
	if tx.Description != "" {
		m["description"] = tx.Description
	}
	if tx.Comments != "" {
		m["comments"] = tx.Comments
	}
	if len(tx.Tags) > 0 {
		tags := make([]any, len(tx.Tags))
		for i, tag := range tx.Tags {
			tags[i] = tag
		}
		m["tags"] = tags
	}
	return m
}

// fromPayload reads a transaction out of a payload map. Absent keys keep their zero value,
// present keys of the wrong kind are rejected.
func fromPayload(m map[string]any) (*models.Transaction, error) {
	tx := &models.Transaction{}
	var err error

	if v, ok := m["id"]; ok && v != nil {
		id, ok := tcp.ToInt64(v)
		if !ok {
			return nil, invalidField("id", "an integer")
		}
		tx.ID = id
	}
	if v, ok := m["amount"]; ok && v != nil {
		amount, ok := tcp.ToFloat64(v)
		if !ok {
			return nil, invalidField("amount", "a number")
		}
		tx.Amount = amount
	}

	textFields := []struct {
		key string
		dst *string
	}{
		{"type", &tx.Type},
		{"payment_method", &tx.PaymentMethod},
		{"title", &tx.Title},
		{"category", &tx.Category},
		{"description", &tx.Description},
		{"comments", &tx.Comments},
	}
	for _, f := range textFields {
		if *f.dst, err = stringField(m, f.key); err != nil {
			return nil, err
		}
	}

	date, err := stringField(m, "date")
	if err != nil {
		return nil, err
	}
	if date != "" {
		if tx.Date, err = time.Parse(time.RFC3339, date); err != nil {
			return nil, invalidField("date", "an RFC 3339 timestamp")
		}
	}

	if v, ok := m["tags"]; ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			return nil, invalidField("tags", "a list of strings")
		}
		for _, item := range list {
			tag, ok := item.(string)
			if !ok {
				return nil, invalidField("tags", "a list of strings")
			}
			tx.Tags = append(tx.Tags, tag)
		}
	}
	return tx, nil
}

func stringField(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidField(key, "a string")
	}
	return s, nil
}

func invalidField(key, want string) error {
	return fmt.Errorf("%w: field %q must be %s", service.ErrInvalidTransaction, key, want)
}
