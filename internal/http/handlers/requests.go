package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"voicestudio/internal/domain"
)

const maxRequestBody = 1 << 20

type startRequest struct {
	ProjectID    string          `json:"project_id" validate:"required,max=128"`
	VoiceMapping map[int]string  `json:"voice_mapping" validate:"omitempty,max=64,dive,keys,min=0,endkeys,max=128"`
	Options      json.RawMessage `json:"options"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (a *App) validateStart(req *startRequest) error {
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	if err := a.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, describeValidation(err))
	}
	if opts := bytes.TrimSpace(req.Options); len(opts) > 0 && !bytes.Equal(opts, []byte("null")) {
		if opts[0] != '{' {
			return fmt.Errorf("%w: options must be a JSON object", domain.ErrValidation)
		}
		req.Options = opts
	} else {
		req.Options = nil
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s exceeds %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
