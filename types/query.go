package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

type RebuildParams struct {
	Refresh bool `query:"refresh"`
}

type DownloadParams struct {
	Path string `query:"path" validate:"required"`
}

type ReviewDocumentParams struct {
	Path string `json:"path" validate:"required" jsonschema:"path of a .docx, .pdf, .txt or .md file readable by the server"`
}

var validate = validator.New()

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *RebuildParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *DownloadParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *ReviewDocumentParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(s any) map[string]string {
	if err := validate.Struct(s); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"_": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}
