package model

import (
	"github.com/fablehq/fable/model"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type CreateAuthor struct {
	Name          string                 `json:"name"`
	PenName       string                 `json:"pen_name"`
	WalletAddress string                 `json:"wallet_address"`
	MetaData      map[string]interface{} `json:"meta_data"`
}

func (a *CreateAuthor) ValidateCreateAuthor() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Name, validation.Required),
		validation.Field(&a.WalletAddress, validation.Required, validation.Length(3, 128)),
	)
}

func (a *CreateAuthor) ToAuthor() model.Author {
	return model.Author{
		Name:          a.Name,
		PenName:       a.PenName,
		WalletAddress: a.WalletAddress,
		MetaData:      a.MetaData,
	}
}
