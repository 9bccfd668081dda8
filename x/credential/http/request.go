package http

import (
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

type createAchievementReq struct {
	Owner       string            `json:"owner"       validate:"required,eth_addr"`
	CategoryID  string            `json:"category_id" validate:"required,max=64"`
	Title       string            `json:"title"       validate:"required,max=200"`
	Description string            `json:"description" validate:"max=4000"`
	Fields      map[string]string `json:"fields"      validate:"max=32"`
}

type submitReq struct {
	Caller           string `json:"caller"            validate:"required,eth_addr"`
	ProofDescription string `json:"proof_description" validate:"required,max=4000"`
	ImageRef         string `json:"image_ref"         validate:"omitempty,uri"`
}

type verifyReq struct {
	Verifier string `json:"verifier" validate:"required,eth_addr"`
}

type rejectReq struct {
	Verifier string `json:"verifier" validate:"required,eth_addr"`
	Reason   string `json:"reason"   validate:"required,max=1000"`
}

type claimReq struct {
	Owner string `json:"owner" validate:"required,eth_addr"`
}

type registerVerifierReq struct {
	Name        string   `json:"name"        validate:"required,max=120"`
	Credentials string   `json:"credentials" validate:"max=1000"`
	Categories  []string `json:"categories"  validate:"required,min=1,dive,required"`
}

type uploadResp struct {
	URI         string `json:"uri"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationDetails flattens validator errors into field → rule.
func validationDetails(err error) map[string]string {
	out := map[string]string{}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return out
	}
	for _, e := range verrs {
		rule := e.Tag()
		if e.Param() != "" {
			rule += "=" + e.Param()
		}
		out[e.Field()] = rule
	}
	return out
}

func parseAddress(s string) (common.Address, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}
