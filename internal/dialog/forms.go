package dialog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMappingRequired = errors.New("prefix and target URL must not be empty")
	ErrNameRequired    = errors.New("name must not be empty")
	ErrInvalidLimit    = errors.New("usage limit must be a positive whole number or empty for unlimited")
	ErrInvalidExpiry   = errors.New("expiry must be a positive number of hours or empty for never")
)

// MaxExpiryHours is the longest expiry that still fits a time.Duration.
const MaxExpiryHours = math.MaxInt64 / float64(time.Hour)

type MappingInput struct {
	Prefix    string
	TargetURL string
}

// AccessKeyInput is the raw text of the access key form.
type AccessKeyInput struct {
	Name string
	// UsageLimit is empty for unlimited.
	UsageLimit string
	// ExpiresInHours is empty for never.
	ExpiresInHours string
	IsActive       bool
	ResetDaily     bool
}

// AccessKeyForm is the validated form. ResetDaily is only ever true when a
// usage limit is set.
type AccessKeyForm struct {
	Name           string
	UsageLimit     *int
	ExpiresInHours *float64
	IsActive       bool
	ResetDaily     bool
}

// ResetDailyEnabled reports whether the daily reset toggle can be used for
// the given raw limit.
func ResetDailyEnabled(usageLimit string) bool {
	return strings.TrimSpace(usageLimit) != ""
}

func validate(req *Request, value any) (any, error) {
	switch req.Kind {
	case KindConfirm:
		v, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("confirm expects a bool, got %T", value)
		}
		return v, nil
	case KindPrompt, KindTextarea:
		v, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s expects a string, got %T", req.Kind, value)
		}
		return v, nil
	case KindMapping:
		v, ok := value.(MappingInput)
		if !ok {
			return nil, fmt.Errorf("mapping expects MappingInput, got %T", value)
		}
		return validateMapping(v)
	case KindAccessKey:
		v, ok := value.(AccessKeyInput)
		if !ok {
			return nil, fmt.Errorf("access key form expects AccessKeyInput, got %T", value)
		}
		form, err := ParseAccessKey(v, req.Editing)
		if err != nil {
			return nil, err
		}
		if !req.Editing {
			form.IsActive = true
		}
		return form, nil
	}
	return nil, fmt.Errorf("unknown dialog kind %d", req.Kind)
}

func validateMapping(in MappingInput) (MappingInput, error) {
	out := MappingInput{
		Prefix:    strings.TrimSpace(in.Prefix),
		TargetURL: strings.TrimSpace(in.TargetURL),
	}
	if out.Prefix == "" || out.TargetURL == "" {
		return MappingInput{}, ErrMappingRequired
	}
	return out, nil
}

// ParseAccessKey validates the raw form. When editing, an expiry of 0 hours is
// accepted since that is what an expired or nearly expired key shows.
func ParseAccessKey(in AccessKeyInput, editing bool) (AccessKeyForm, error) {
	form := AccessKeyForm{
		Name:     strings.TrimSpace(in.Name),
		IsActive: in.IsActive,
	}
	if form.Name == "" {
		return AccessKeyForm{}, ErrNameRequired
	}

	if raw := strings.TrimSpace(in.UsageLimit); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return AccessKeyForm{}, ErrInvalidLimit
		}
		form.UsageLimit = &n
		form.ResetDaily = in.ResetDaily
	}

	if raw := strings.TrimSpace(in.ExpiresInHours); raw != "" {
		h, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(h) || h < 0 || h >= MaxExpiryHours || (h == 0 && !editing) {
			return AccessKeyForm{}, ErrInvalidExpiry
		}
		form.ExpiresInHours = &h
	}

	return form, nil
}
