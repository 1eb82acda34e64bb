package core

import (
	"encoding/json"
	"errors"
	"mining-coordinator/message"
	"mining-coordinator/metrics"
)

// SignalRequest 握手消息转发请求。
// From 由调用方自报，未与发送方的会话绑定
type SignalRequest struct {
	Type      string          `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Relay 无状态的信令转发
type Relay struct {
	registry *Registry
}

func NewRelay(registry *Registry) *Relay {
	return &Relay{registry: registry}
}

// Relay 将 offer/answer/ice 原样转发给 To，附带 From
func (r *Relay) Relay(req SignalRequest) (err error) {
	defer func() { metrics.ObserveSignal(signalKind(req.Type), signalResult(err)) }()

	if !message.IsSignalType(req.Type) || req.From == "" || req.To == "" {
		return ErrInvalidSignal
	}

	frame := message.Signal{Type: req.Type, From: req.From}
	switch req.Type {
	case message.TypeOffer:
		frame.Offer = req.Offer
	case message.TypeAnswer:
		frame.Answer = req.Answer
	case message.TypeIce:
		frame.Candidate = req.Candidate
	}

	return r.registry.Send(req.To, message.Marshal(frame))
}

// signalKind 指标标签只取固定取值
func signalKind(t string) string {
	if message.IsSignalType(t) {
		return t
	}
	return "invalid"
}

func signalResult(err error) string {
	switch {
	case err == nil:
		return "delivered"
	case errors.Is(err, ErrPeerNotFound):
		return "peer-not-found"
	case errors.Is(err, ErrPeerBusy):
		return "peer-busy"
	default:
		return "invalid"
	}
}
