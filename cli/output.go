package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alpkeskin/gotoon"
)

func outputJSON(data any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func outputTOON(data any) error {
	output, err := gotoon.Encode(data)
	if err != nil {
		return fmt.Errorf("failed to encode TOON: %w", err)
	}
	fmt.Println(output)
	return nil
}
