package utils

import (
	"bytes"
	"encoding/json"
)

// Marshal generic struct to JSON
func MarshalToJSON[T any](input T) (string, error) {
	jsonData, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

// Unmarshal JSON to generic struct. Numbers decode as json.Number so amounts keep their digits.
func UnmarshalFromJSON[T any](data []byte, output *T) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(output)
}

