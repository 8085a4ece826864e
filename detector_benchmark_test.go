package lbpcascade

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
)

func Benchmark_DetectMultiScale(b *testing.B) {
	c, err := LoadFile(filepath.Join("./testdata", "tiny_lbp.xml"))
	if err != nil {
		b.Fatalf("could not load the cascade: %v", err)
	}
	ii, err := BuildIntegral(randomPixels(rand.New(rand.NewSource(1)), 240, 320))
	if err != nil {
		b.Fatalf("error building the integral image: %v", err)
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := c.DetectMultiScale(context.Background(), ii, 1.1, 1); err != nil {
			b.FailNow()
		}
	}
}

func Benchmark_Detector(b *testing.B) {
	c, err := LoadFile(filepath.Join("./testdata", "tiny_lbp.xml"))
	if err != nil {
		b.Fatalf("could not load the cascade: %v", err)
	}
	ii, err := BuildIntegral(randomPixels(rand.New(rand.NewSource(1)), 240, 320))
	if err != nil {
		b.Fatalf("error building the integral image: %v", err)
	}
	d := &Detector{Cascade: c, ScaleFactor: 1.1, StepSize: 1}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := d.Detect(context.Background(), ii); err != nil {
			b.FailNow()
		}
	}
}

func Benchmark_BuildIntegral(b *testing.B) {
	pixels := randomPixels(rand.New(rand.NewSource(1)), 480, 640)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := BuildIntegral(pixels); err != nil {
			b.FailNow()
		}
	}
}
