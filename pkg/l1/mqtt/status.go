package mqtt

import (
	"fmt"
	"time"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
)

// Topic suffixes.
const (
	StatusTopic = "status"
	CapsTopic   = "caps"
)

// StateOffline is published as will and on shutdown.
const StateOffline = "offline"

// Status is the link status of a device.
type Status struct {
	Device    string
	Transport string
	State     string
	Online    bool
	Connected bool
	Seq       uint64
	Time      time.Time
}

// Struct converts Status into a protobuf Struct.
func (s *Status) Struct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"device":    stringValue(s.Device),
		"transport": stringValue(s.Transport),
		"state":     stringValue(s.State),
		"online":    boolValue(s.Online),
		"connected": boolValue(s.Connected),
		"seq":       numberValue(float64(s.Seq)),
		"time":      numberValue(float64(s.Time.UnixNano() / int64(time.Millisecond))),
	}}
}

// String implements fmt.Stringer.
func (s *Status) String() string {
	return fmt.Sprintf("%s[%s] %s online=%v connected=%v #%d", s.Device, s.Transport, s.State, s.Online, s.Connected, s.Seq)
}

// EncodeStatus encodes Status as a serialized protobuf Struct.
func EncodeStatus(s *Status) ([]byte, error) {
	return proto.Marshal(s.Struct())
}

// DecodeStatus decodes a serialized protobuf Struct into Status.
func DecodeStatus(data []byte) (*Status, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	if st.Fields["device"] == nil || st.Fields["state"] == nil {
		return nil, fmt.Errorf("decode status: missing device or state")
	}
	ms := int64(st.Fields["time"].GetNumberValue())
	return &Status{
		Device:    st.Fields["device"].GetStringValue(),
		Transport: st.Fields["transport"].GetStringValue(),
		State:     st.Fields["state"].GetStringValue(),
		Online:    st.Fields["online"].GetBoolValue(),
		Connected: st.Fields["connected"].GetBoolValue(),
		Seq:       uint64(st.Fields["seq"].GetNumberValue()),
		Time:      time.Unix(0, ms*int64(time.Millisecond)),
	}, nil
}

func stringValue(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}

func boolValue(b bool) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: b}}
}

func numberValue(n float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: n}}
}
