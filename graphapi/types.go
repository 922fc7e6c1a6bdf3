package graphapi

import (
	"encoding/json"
	"errors"
)

// Pos is a node location in the editor, serialized as [x, y].
type Pos struct {
	X float64
	Y float64
}

func (p *Pos) UnmarshalJSON(b []byte) error {
	var tmp []float64
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	if len(tmp) != 2 {
		return errors.New("position must have two components")
	}
	p.X, p.Y = tmp[0], tmp[1]
	return nil
}

func (p Pos) MarshalJSON() ([]byte, error) {
	return json.Marshal([]float64{p.X, p.Y})
}

// Size is a node's width and height, serialized as [width, height]. The
// object form {"0": w, "1": h} is accepted when reading.
type Size struct {
	Width  float64
	Height float64
}

func (s *Size) UnmarshalJSON(b []byte) error {
	// First try to unmarshal as array
	var tmpArr []float64
	if err := json.Unmarshal(b, &tmpArr); err == nil && len(tmpArr) == 2 {
		s.Width, s.Height = tmpArr[0], tmpArr[1]
		return nil
	}

	// If not array, try to unmarshal as map
	var tmpMap map[string]float64
	if err := json.Unmarshal(b, &tmpMap); err != nil {
		return err
	}
	s.Width = tmpMap["0"]
	s.Height = tmpMap["1"]
	return nil
}

// when marshaling, we'll always output as an array.
func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal([]float64{s.Width, s.Height})
}
