package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-fanout/core"
)

const (
	ContentTypeJSON = "application/json"
	AcceptedBody    = "notification accepted"
)

// Payload is the JSON body POSTed to subscribers.
type Payload struct {
	Index           string        `json:"wtIndex"`
	ResourceType    string        `json:"resourceType"`
	ResourceAddress string        `json:"resourceAddress"`
	Scope           *PayloadScope `json:"scope,omitempty"`
}

type PayloadScope struct {
	Action   string   `json:"action"`
	Subjects []string `json:"subjects,omitempty"`
}

func NewPayload(n core.Notification) Payload {
	n = core.NormalizeNotification(n)
	payload := Payload{
		Index:           n.Index,
		ResourceType:    n.ResourceType,
		ResourceAddress: n.ResourceAddress,
	}
	if action, ok := n.Action.Get(); ok {
		payload.Scope = &PayloadScope{
			Action:   action,
			Subjects: append([]string(nil), n.Subjects...),
		}
	}
	return payload
}

func EncodePayload(n core.Notification) ([]byte, error) {
	body, err := json.Marshal(NewPayload(n))
	if err != nil {
		return nil, fmt.Errorf("webhooks: encode payload: %w", err)
	}
	return body, nil
}

// DecodePayload parses a subscriber payload back into a notification.
func DecodePayload(body []byte) (core.Notification, error) {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.Notification{}, fmt.Errorf("webhooks: decode payload: %w", err)
	}
	n := core.Notification{
		Index:           payload.Index,
		ResourceType:    payload.ResourceType,
		ResourceAddress: payload.ResourceAddress,
	}
	if payload.Scope != nil {
		n.Action = core.OptionalString(payload.Scope.Action)
		n.Subjects = payload.Scope.Subjects
	}
	return core.NormalizeNotification(n), nil
}

// Accepted reports whether a subscriber acknowledged the delivery: status
// 200 and a body reading "notification accepted" in any case. A transport
// error is never an acknowledgement.
func Accepted(resp core.TransportResponse, err error) bool {
	if err != nil || resp.StatusCode != 200 {
		return false
	}
	return strings.ToLower(strings.TrimSpace(string(resp.Body))) == AcceptedBody
}
