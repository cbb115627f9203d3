package grpc

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"therapia/backend/internal/domain"
)

// fieldError is a malformed request field. It maps to InvalidArgument.
type fieldError struct {
	field string
	msg   string
}

func (e *fieldError) Error() string {
	return e.field + " " + e.msg
}

type request struct {
	fields map[string]*structpb.Value
}

func newRequest(in *structpb.Struct) request {
	if in == nil {
		return request{}
	}
	return request{fields: in.GetFields()}
}

func (r request) value(name string) (*structpb.Value, bool) {
	v, ok := r.fields[name]
	if !ok || v == nil {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

func (r request) str(name string) (string, error) {
	v, ok := r.value(name)
	if !ok {
		return "", nil
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", &fieldError{field: name, msg: "must be a string"}
	}
	return s.StringValue, nil
}

func (r request) integer(name string) (int, error) {
	v, ok := r.value(name)
	if !ok {
		return 0, nil
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber {
		return 0, &fieldError{field: name, msg: "must be a number"}
	}
	f := n.NumberValue
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, &fieldError{field: name, msg: "must be an integer"}
	}
	return int(f), nil
}

// timestamp reads an RFC 3339 timestamp. A missing field yields the zero time.
func (r request) timestamp(name string) (time.Time, error) {
	s, err := r.str(name)
	if err != nil || strings.TrimSpace(s) == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &fieldError{field: name, msg: "must be an RFC 3339 timestamp"}
	}
	return t, nil
}

func (r request) id(name string) (uuid.UUID, error) {
	s, err := r.str(name)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, &fieldError{field: name, msg: "must be a UUID"}
	}
	return id, nil
}

func appointmentValue(a domain.Appointment) *structpb.Value {
	fields := map[string]*structpb.Value{
		"id":                 structpb.NewStringValue(a.ID.String()),
		"patient_ref":        structpb.NewStringValue(a.PatientRef),
		"start_time":         structpb.NewStringValue(formatTime(a.StartTime)),
		"end_time":           structpb.NewStringValue(formatTime(a.EndTime())),
		"duration_minutes":   structpb.NewNumberValue(float64(a.DurationMinutes)),
		"status":             structpb.NewStringValue(string(a.Status)),
		"reason":             structpb.NewStringValue(a.Reason),
		"notes":              structpb.NewStringValue(a.Notes),
		"confirmation_email": structpb.NewStringValue(a.ConfirmationEmail),
		"confirmation_sent":  structpb.NewBoolValue(a.ConfirmationSent),
		"created_at":         structpb.NewStringValue(formatTime(a.CreatedAt)),
		"updated_at":         structpb.NewStringValue(formatTime(a.UpdatedAt)),
	}
	if a.TherapistRef != "" {
		fields["therapist_ref"] = structpb.NewStringValue(a.TherapistRef)
	} else {
		fields["therapist_ref"] = structpb.NewNullValue()
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func appointmentResponse(a domain.Appointment) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"appointment": appointmentValue(a),
	}}
}

func appointmentsResponse(appts []domain.Appointment) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(appts))
	for _, a := range appts {
		values = append(values, appointmentValue(a))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"appointments": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

func boolResponse(name string, v bool) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		name: structpb.NewBoolValue(v),
	}}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
