package model

import (
	"errors"

	"github.com/fablehq/fable/model"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// PinContent is the request body for pinning a payload to the content
// store. Either a plain text body or a structured story payload must be
// provided, not both.
type PinContent struct {
	Name    string              `json:"name"`
	Content string              `json:"content"`
	Story   *model.StoryContent `json:"story"`
}

func contentOrStoryValidation(p *PinContent) validation.RuleFunc {
	return func(value interface{}) error {
		if (p.Content == "" && p.Story == nil) || (p.Content != "" && p.Story != nil) {
			return errors.New("either content or story is required, not both")
		}
		return nil
	}
}

func (p *PinContent) ValidatePinContent() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 256)),
		validation.Field(&p.Content, validation.By(contentOrStoryValidation(p))),
	)
}
