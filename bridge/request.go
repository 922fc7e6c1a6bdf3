package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// TileUnit is the granularity image dimensions must respect.
const TileUnit = 8

// DefaultModelID is the model loaded when a request does not name one.
const DefaultModelID = "gvecchio/MatForger"

// Operations understood by the entry point.
const (
	OpText2Img = "text2img"
	OpImg2Img  = "img2img"
)

type Precision string

const (
	FP16 Precision = "fp16"
	FP32 Precision = "fp32"
)

type Device string

const (
	CPU  Device = "cpu"
	CUDA Device = "cuda"
)

type Scheduler string

const (
	DDIM  Scheduler = "ddim"
	Euler Scheduler = "euler"
)

// Request is one texture generation job. It is passed by value and never
// modified once handed to the bridge.
type Request struct {
	Name string `validate:"required,pathelem"`
	// Prompt is the text prompt. Ignored when PromptImage is set.
	Prompt string `validate:"required_without=PromptImage"`
	// PromptImage is the path of a reference image for img2img.
	PromptImage   string    `validate:"omitempty,file"`
	SaveRoot      string    `validate:"required"`
	ModelID       string    `validate:"required"`
	Precision     Precision `validate:"oneof=fp16 fp32"`
	Device        Device    `validate:"oneof=cpu cuda"`
	GuidanceScale float64   `validate:"gte=0"`
	Width         int       `validate:"tile"`
	Height        int       `validate:"tile"`
	Steps         int       `validate:"gte=0"`
	Scheduler     Scheduler `validate:"oneof=ddim euler"`
	Tileable      bool
	Patched       bool
	FreeU         bool
}

// NewRequest returns a text prompt request with the entry point's usual
// sampler settings.
func NewRequest(name, prompt, saveRoot string) Request {
	return Request{
		Name:          name,
		Prompt:        prompt,
		SaveRoot:      saveRoot,
		ModelID:       DefaultModelID,
		Precision:     FP16,
		Device:        CUDA,
		GuidanceScale: 6.0,
		Width:         512,
		Height:        512,
		Steps:         25,
		Scheduler:     Euler,
		Tileable:      true,
	}
}

// Operation is the entry point operation the request maps to.
func (r Request) Operation() string {
	if r.PromptImage != "" {
		return OpImg2Img
	}
	return OpText2Img
}

// ArtifactDir is the directory the entry point writes the texture set to.
func (r Request) ArtifactDir() string {
	return filepath.Join(r.SaveRoot, r.Name)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("tile", func(fl validator.FieldLevel) bool {
		n := fl.Field().Int()
		return n > 0 && n%TileUnit == 0
	})
	_ = v.RegisterValidation("pathelem", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && filepath.Base(s) == s
	})
	return v
}

// Validate checks the request field by field. The returned error is a
// *RequestError listing every violation.
func (r Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &RequestError{}
	for _, e := range verrs {
		out.Problems = append(out.Problems, formatFieldError(e))
	}
	return out
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "tile":
		return fmt.Sprintf("%s must be a positive multiple of %d, got %v", field, TileUnit, e.Value())
	case "pathelem":
		return fmt.Sprintf("%s must be a single path element, got %q", field, e.Value())
	case "file":
		return fmt.Sprintf("%s must be an existing file", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// Args renders the request in the entry point's flag order. Paths, including
// a model id that exists on disk, are made absolute.
func (r Request) Args() ([]Arg, error) {
	saveRoot, err := filepath.Abs(r.SaveRoot)
	if err != nil {
		return nil, err
	}
	prompt := r.Prompt
	if r.PromptImage != "" {
		if prompt, err = filepath.Abs(r.PromptImage); err != nil {
			return nil, err
		}
	}
	// a model id that names something on disk is a local model path
	model := r.ModelID
	if _, err := os.Stat(model); err == nil {
		if model, err = filepath.Abs(model); err != nil {
			return nil, err
		}
	}
	return []Arg{
		{"name", r.Name},
		{"prompt", prompt},
		{"save_path", saveRoot},
		{"model_path", model},
		{"precision", string(r.Precision)},
		{"device", string(r.Device)},
		{"guidance_scale", strconv.FormatFloat(r.GuidanceScale, 'f', -1, 64)},
		{"height", strconv.Itoa(r.Height)},
		{"width", strconv.Itoa(r.Width)},
		{"num_inference_steps", strconv.Itoa(r.Steps)},
		{"scheduler", string(r.Scheduler)},
		{"tileable", formatBool(r.Tileable)},
		{"patched", formatBool(r.Patched)},
		{"free_u", formatBool(r.FreeU)},
	}, nil
}

// The entry point parses flags with python-fire, which reads True/False.
func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
