package applet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ResponseType identifies the answer widget of an item. The set is
// closed; payloads carrying anything else are rejected.
type ResponseType string

const (
	ResponseSingleSelect     ResponseType = "singleSelect"
	ResponseMultiSelect      ResponseType = "multiSelect"
	ResponseSlider           ResponseType = "slider"
	ResponseText             ResponseType = "text"
	ResponseParagraphText    ResponseType = "paragraphText"
	ResponseDate             ResponseType = "date"
	ResponseTime             ResponseType = "time"
	ResponseTimeRange        ResponseType = "timeRange"
	ResponsePhoto            ResponseType = "photo"
	ResponseVideo            ResponseType = "video"
	ResponseAudio            ResponseType = "audio"
	ResponseDrawing          ResponseType = "drawing"
	ResponseGeolocation      ResponseType = "geolocation"
	ResponseMessage          ResponseType = "message"
	ResponseNumberSelect     ResponseType = "numberSelect"
	ResponseAudioPlayer      ResponseType = "audioPlayer"
	ResponseSliderRows       ResponseType = "sliderRows"
	ResponseSingleSelectRows ResponseType = "singleSelectRows"
	ResponseMultiSelectRows  ResponseType = "multiSelectRows"
	ResponsePhraseBuilder    ResponseType = "phraseBuilder"
)

// responseValuesRequired lists the types whose response_values payload is
// mandatory. Types absent from this map must not carry response_values.
var responseValuesRequired = map[ResponseType]bool{
	ResponseSingleSelect:     true,
	ResponseMultiSelect:      true,
	ResponseSlider:           true,
	ResponseNumberSelect:     true,
	ResponseAudio:            true,
	ResponseAudioPlayer:      true,
	ResponseDrawing:          true,
	ResponseSliderRows:       true,
	ResponseSingleSelectRows: true,
	ResponseMultiSelectRows:  true,
	ResponsePhraseBuilder:    true,
}

var knownResponseTypes = map[ResponseType]bool{
	ResponseSingleSelect:     true,
	ResponseMultiSelect:      true,
	ResponseSlider:           true,
	ResponseText:             true,
	ResponseParagraphText:    true,
	ResponseDate:             true,
	ResponseTime:             true,
	ResponseTimeRange:        true,
	ResponsePhoto:            true,
	ResponseVideo:            true,
	ResponseAudio:            true,
	ResponseDrawing:          true,
	ResponseGeolocation:      true,
	ResponseMessage:          true,
	ResponseNumberSelect:     true,
	ResponseAudioPlayer:      true,
	ResponseSliderRows:       true,
	ResponseSingleSelectRows: true,
	ResponseMultiSelectRows:  true,
	ResponsePhraseBuilder:    true,
}

// Valid reports whether t is a member of the closed response-type set.
func (t ResponseType) Valid() bool {
	return knownResponseTypes[t]
}

// RequiresValues reports whether items of this type must carry a
// response_values payload.
func (t ResponseType) RequiresValues() bool {
	return responseValuesRequired[t]
}

// validateResponseShape gates the response_values and config payloads of
// an item against its response type. The payloads themselves stay opaque
// beyond being well-formed JSON objects.
func validateResponseShape(name string, t ResponseType, values, config json.RawMessage) error {
	if !t.Valid() {
		return fmt.Errorf("%w: item %q has unknown response type %q", ErrInvalidResponseShape, name, t)
	}
	if !isJSONObject(config) {
		return fmt.Errorf("%w: item %q config must be a JSON object", ErrInvalidResponseShape, name)
	}
	hasValues := len(bytes.TrimSpace(values)) > 0 && !bytes.Equal(bytes.TrimSpace(values), []byte("null"))
	if t.RequiresValues() && !hasValues {
		return fmt.Errorf("%w: item %q of type %q requires response values", ErrInvalidResponseShape, name, t)
	}
	if !t.RequiresValues() && hasValues {
		return fmt.Errorf("%w: item %q of type %q must not carry response values", ErrInvalidResponseShape, name, t)
	}
	if hasValues {
		if !isJSONObject(values) {
			return fmt.Errorf("%w: item %q response values must be a JSON object", ErrInvalidResponseShape, name)
		}
		if err := validateValuesVariant(name, t, values); err != nil {
			return err
		}
	}
	return nil
}

// validateValuesVariant checks the response_values payload against the
// shape its response type demands. Only the fields the checks need are
// modelled; payloads may carry more.
func validateValuesVariant(name string, t ResponseType, raw json.RawMessage) error {
	shapeErr := func(msg string) error {
		return fmt.Errorf("%w: item %q of type %q %s", ErrInvalidResponseShape, name, t, msg)
	}
	decode := func(dst any) error {
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%w: item %q response values: %v", ErrInvalidResponseShape, name, err)
		}
		return nil
	}

	switch t {
	case ResponseSingleSelect, ResponseMultiSelect:
		var v struct {
			Options []struct {
				Text string `json:"text"`
			} `json:"options"`
		}
		if err := decode(&v); err != nil {
			return err
		}
		if len(v.Options) == 0 {
			return shapeErr("needs at least one option")
		}
		for i, opt := range v.Options {
			if strings.TrimSpace(opt.Text) == "" {
				return shapeErr(fmt.Sprintf("option %d has no text", i))
			}
		}

	case ResponseSlider, ResponseNumberSelect:
		var v struct {
			MinValue *int `json:"min_value"`
			MaxValue *int `json:"max_value"`
		}
		if err := decode(&v); err != nil {
			return err
		}
		if v.MinValue == nil || v.MaxValue == nil {
			return shapeErr("needs min_value and max_value")
		}
		if *v.MinValue >= *v.MaxValue {
			return shapeErr("needs min_value below max_value")
		}

	case ResponseSliderRows:
		var v struct {
			Rows []struct {
				MinValue *int `json:"min_value"`
				MaxValue *int `json:"max_value"`
			} `json:"rows"`
		}
		if err := decode(&v); err != nil {
			return err
		}
		if len(v.Rows) == 0 {
			return shapeErr("needs at least one row")
		}
		for i, row := range v.Rows {
			if row.MinValue == nil || row.MaxValue == nil {
				return shapeErr(fmt.Sprintf("row %d needs min_value and max_value", i))
			}
			if *row.MinValue >= *row.MaxValue {
				return shapeErr(fmt.Sprintf("row %d needs min_value below max_value", i))
			}
		}

	case ResponseSingleSelectRows, ResponseMultiSelectRows:
		var v struct {
			Rows    []json.RawMessage `json:"rows"`
			Options []json.RawMessage `json:"options"`
		}
		if err := decode(&v); err != nil {
			return err
		}
		if len(v.Rows) == 0 {
			return shapeErr("needs at least one row")
		}
		if len(v.Options) == 0 {
			return shapeErr("needs at least one option")
		}

	case ResponseAudio:
		var v struct {
			MaxDuration *int `json:"max_duration"`
		}
		if err := decode(&v); err != nil {
			return err
		}
		if v.MaxDuration == nil || *v.MaxDuration <= 0 {
			return shapeErr("needs a positive max_duration")
		}

	case ResponseAudioPlayer:
		var v struct {
			File string `json:"file"`
		}
		if err := decode(&v); err != nil {
			return err
		}
		if strings.TrimSpace(v.File) == "" {
			return shapeErr("needs a file")
		}

	case ResponsePhraseBuilder:
		var v struct {
			Phrases []json.RawMessage `json:"phrases"`
		}
		if err := decode(&v); err != nil {
			return err
		}
		if len(v.Phrases) == 0 {
			return shapeErr("needs at least one phrase")
		}

	case ResponseDrawing:
		// Background and example images are both optional; the object
		// check above is the whole contract.
	}
	return nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}
