package lbpcascade_test

import (
	"context"
	"fmt"

	"github.com/esimov/lbpcascade"
)

func ExampleCascade_DetectMultiScale() {
	cascade, err := lbpcascade.Unpack([]byte(acceptEverything))
	if err != nil {
		fmt.Printf("Error loading the cascade: %s", err.Error())
		return
	}

	// A 50x50 grayscale buffer, one slice per image row.
	pixels := make([][]uint8, 50)
	for i := range pixels {
		pixels[i] = make([]uint8, 50)
	}

	ii, err := lbpcascade.BuildIntegral(pixels)
	if err != nil {
		fmt.Printf("Error building the integral image: %s", err.Error())
		return
	}

	dets, err := cascade.DetectMultiScale(context.Background(), ii, 1.3, 2)
	if err != nil {
		fmt.Printf("Error running the detection: %s", err.Error())
		return
	}
	fmt.Printf("Found %d detections\n", len(dets))
	// Output: Found 241 detections
}
