package graphapi

import (
	"encoding/json"
	"errors"
)

// Link is a directed connection from an output slot to an input slot. It is
// serialized as the tuple [id, origin_id, origin_slot, target_id,
// target_slot, type].
type Link struct {
	ID         int
	OriginID   int
	OriginSlot int
	TargetID   int
	TargetSlot int
	Type       string
}

func (l *Link) UnmarshalJSON(b []byte) error {
	var tmp []interface{}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	if len(tmp) != 6 {
		return errors.New("wrong number of fields in JSON array")
	}

	ints := make([]int, 5)
	for i := range ints {
		f, ok := tmp[i].(float64)
		if !ok {
			return errors.New("link field is not a number")
		}
		ints[i] = int(f)
	}
	l.ID = ints[0]
	l.OriginID = ints[1]
	l.OriginSlot = ints[2]
	l.TargetID = ints[3]
	l.TargetSlot = ints[4]
	l.Type, _ = tmp[5].(string)

	return nil
}

func (l *Link) MarshalJSON() ([]byte, error) {
	tmp := []interface{}{
		l.ID,
		l.OriginID,
		l.OriginSlot,
		l.TargetID,
		l.TargetSlot,
		l.Type,
	}
	return json.Marshal(tmp)
}
