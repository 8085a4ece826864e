/*
Package lbpcascade is an object detector running pre-trained OpenCV LBP (local binary pattern)
cascade classifiers over grayscale images. It slides a detection window over the image at
increasing scales and reports every window accepted by all the stages of the cascade.

The package provides a command line interface, supporting various flags for the detection
and the output. To check the supported commands type:

	$ lbpdetect --help

In case you wish to integrate the API in a self constructed environment here is a simple example:

	package main

	import (
		"context"
		"fmt"

		"github.com/esimov/lbpcascade"
	)

	func main() {
		cascade, err := lbpcascade.LoadFile("lbpcascade_frontalface.xml")
		if err != nil {
			fmt.Printf("Error loading the cascade: %s", err.Error())
			return
		}

		// A 480x640 grayscale buffer, one slice per image row.
		pixels := make([][]uint8, 480)
		for i := range pixels {
			pixels[i] = make([]uint8, 640)
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
	}
*/
package lbpcascade
