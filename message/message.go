package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/mitchellh/mapstructure"
)

const (
	TypeRegister       string = "register"
	TypeOnlineMiners          = "onlineMiners"
	TypePeerJoined            = "peer-joined"
	TypeBlockCompleted        = "blockCompleted"
	TypeError                 = "error"

	TypeOffer  = "offer"
	TypeAnswer = "answer"
	TypeIce    = "ice"
)

var ErrMissingType = errors.New("message type is required")

// Inbound 客户端经长连接发来的帧
type Inbound struct {
	Type    string `mapstructure:"type"`
	MinerId string `mapstructure:"minerId"`
}

type OnlineMiners struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type PeerJoined struct {
	Type   string `json:"type"`
	PeerId string `json:"peerId"`
}

type BlockCompleted struct {
	Type    string `json:"type"`
	BlockId int64  `json:"blockId"`
	MinedBy string `json:"minedBy"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Signal 转发给目标矿工的握手消息，只携带与类型对应的字段
type Signal struct {
	Type      string          `json:"type"`
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// IsSignalType offer/answer/ice
func IsSignalType(t string) bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeIce
}

// UnmarshalInbound 解析客户端帧；minerId 允许是数字
func UnmarshalInbound(b []byte) (Inbound, error) {
	var in Inbound

	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return in, fmt.Errorf("decode frame: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &in,
	})
	if err != nil {
		return in, err
	}
	if err := decoder.Decode(raw); err != nil {
		return in, fmt.Errorf("decode frame fields: %w", err)
	}
	if in.Type == "" {
		return in, ErrMissingType
	}

	return in, nil
}

func NewOnlineMiners(count int) OnlineMiners {
	return OnlineMiners{Type: TypeOnlineMiners, Count: count}
}

func NewPeerJoined(peerId string) PeerJoined {
	return PeerJoined{Type: TypePeerJoined, PeerId: peerId}
}

func NewBlockCompleted(blockId int64, minedBy string) BlockCompleted {
	return BlockCompleted{Type: TypeBlockCompleted, BlockId: blockId, MinedBy: minedBy}
}

func NewError(msg string) Error {
	return Error{Type: TypeError, Message: msg}
}

// Marshal 出站帧编码，结构体均可安全编码
func Marshal(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
