package lbpcascade

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// internalNodes holds two reserved values, the rectangle index and the 8 table words.
	internalNodesLen = 11
	rectIndexPos     = 2
	tableOffset      = 3
)

var errMissing = errors.New("missing field")

// rawCascade is the encoding independent form of a cascade description.
type rawCascade struct {
	featureType string
	height      *int64
	width       *int64
	stages      []rawStage
	rects       [][]int64
}

type rawStage struct {
	threshold *float64
	weak      []rawWeak
}

type rawWeak struct {
	nodes  []int64
	leaves []float64
}

// LoadFile reads and parses the cascade description found at path.
func LoadFile(path string) (*Cascade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read the cascade file: %w", err)
	}
	return Unpack(data)
}

// Load parses a cascade description read from r.
func Load(r io.Reader) (*Cascade, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read the cascade description: %w", err)
	}
	return Unpack(data)
}

// Unpack parses an OpenCV LBP cascade description in either its XML or its YAML form.
func Unpack(data []byte) (*Cascade, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ModelFormatError{Field: "cascade", Err: errors.New("empty description")}
	}

	var (
		raw *rawCascade
		err error
	)
	if trimmed[0] == '<' {
		raw, err = parseXML(trimmed)
	} else {
		raw, err = parseYAML(trimmed)
	}
	if err != nil {
		return nil, err
	}
	return raw.build()
}

type xmlStorage struct {
	Cascade *xmlCascade `xml:"cascade"`
}

type xmlCascade struct {
	FeatureType string       `xml:"featureType"`
	Height      *string      `xml:"height"`
	Width       *string      `xml:"width"`
	Stages      []xmlStage   `xml:"stages>_"`
	Features    []xmlFeature `xml:"features>_"`
}

type xmlStage struct {
	Threshold *string   `xml:"stageThreshold"`
	Weak      []xmlWeak `xml:"weakClassifiers>_"`
}

type xmlWeak struct {
	InternalNodes *string `xml:"internalNodes"`
	LeafValues    *string `xml:"leafValues"`
}

type xmlFeature struct {
	Rect *string `xml:"rect"`
}

func parseXML(data []byte) (*rawCascade, error) {
	var doc xmlStorage
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &ModelFormatError{Field: "cascade", Err: err}
	}
	if doc.Cascade == nil {
		return nil, &ModelFormatError{Field: "cascade", Err: errMissing}
	}
	c := doc.Cascade

	raw := &rawCascade{featureType: strings.TrimSpace(c.FeatureType)}

	var err error
	if raw.height, err = xmlInt(c.Height, "height"); err != nil {
		return nil, err
	}
	if raw.width, err = xmlInt(c.Width, "width"); err != nil {
		return nil, err
	}

	for i, f := range c.Features {
		field := fmt.Sprintf("features[%d].rect", i)
		if f.Rect == nil {
			return nil, &ModelFormatError{Field: field, Err: errMissing}
		}
		rect, err := parseInts(*f.Rect, field)
		if err != nil {
			return nil, err
		}
		raw.rects = append(raw.rects, rect)
	}

	for i, s := range c.Stages {
		field := fmt.Sprintf("stages[%d]", i)
		stage := rawStage{}
		if s.Threshold == nil {
			return nil, &ModelFormatError{Field: field + ".stageThreshold", Err: errMissing}
		}
		thr, err := parseFloats(*s.Threshold, field+".stageThreshold")
		if err != nil {
			return nil, err
		}
		if len(thr) != 1 {
			return nil, &ModelFormatError{Field: field + ".stageThreshold", Err: fmt.Errorf("expected a single value, got %d", len(thr))}
		}
		stage.threshold = &thr[0]

		for j, w := range s.Weak {
			wfield := fmt.Sprintf("%s.weakClassifiers[%d]", field, j)
			if w.InternalNodes == nil {
				return nil, &ModelFormatError{Field: wfield + ".internalNodes", Err: errMissing}
			}
			if w.LeafValues == nil {
				return nil, &ModelFormatError{Field: wfield + ".leafValues", Err: errMissing}
			}
			nodes, err := parseInts(*w.InternalNodes, wfield+".internalNodes")
			if err != nil {
				return nil, err
			}
			leaves, err := parseFloats(*w.LeafValues, wfield+".leafValues")
			if err != nil {
				return nil, err
			}
			stage.weak = append(stage.weak, rawWeak{nodes: nodes, leaves: leaves})
		}
		raw.stages = append(raw.stages, stage)
	}
	return raw, nil
}

func xmlInt(s *string, field string) (*int64, error) {
	if s == nil {
		return nil, &ModelFormatError{Field: field, Err: errMissing}
	}
	v, err := strconv.ParseInt(strings.TrimSpace(*s), 10, 64)
	if err != nil {
		return nil, &ModelFormatError{Field: field, Err: err}
	}
	return &v, nil
}

func parseInts(s, field string) ([]int64, error) {
	fields := strings.Fields(s)
	out := make([]int64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, &ModelFormatError{Field: field, Err: err}
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(s, field string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, &ModelFormatError{Field: field, Err: err}
		}
		out = append(out, v)
	}
	return out, nil
}

type yamlStorage struct {
	Cascade *yamlCascade `yaml:"cascade"`
}

type yamlCascade struct {
	FeatureType string        `yaml:"featureType"`
	Height      *int64        `yaml:"height"`
	Width       *int64        `yaml:"width"`
	Stages      []yamlStage   `yaml:"stages"`
	Features    []yamlFeature `yaml:"features"`
}

type yamlStage struct {
	Threshold *float64  `yaml:"stageThreshold"`
	Weak      []yamlWeak `yaml:"weakClassifiers"`
}

type yamlWeak struct {
	InternalNodes []int64   `yaml:"internalNodes"`
	LeafValues    []float64 `yaml:"leafValues"`
}

type yamlFeature struct {
	Rect []int64 `yaml:"rect"`
}

// parseYAML decodes the YAML flavour written by OpenCV's FileStorage.
func parseYAML(data []byte) (*rawCascade, error) {
	// OpenCV writes a "%YAML:1.0" directive which is not valid YAML.
	if bytes.HasPrefix(data, []byte("%YAML")) {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			data = data[i+1:]
		} else {
			data = nil
		}
	}

	var doc yamlStorage
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ModelFormatError{Field: "cascade", Err: err}
	}
	if doc.Cascade == nil {
		return nil, &ModelFormatError{Field: "cascade", Err: errMissing}
	}
	c := doc.Cascade

	raw := &rawCascade{
		featureType: strings.TrimSpace(c.FeatureType),
		height:      c.Height,
		width:       c.Width,
	}
	for _, f := range c.Features {
		raw.rects = append(raw.rects, f.Rect)
	}
	for i, s := range c.Stages {
		stage := rawStage{threshold: s.Threshold}
		for j, w := range s.Weak {
			wfield := fmt.Sprintf("stages[%d].weakClassifiers[%d]", i, j)
			if w.InternalNodes == nil {
				return nil, &ModelFormatError{Field: wfield + ".internalNodes", Err: errMissing}
			}
			if w.LeafValues == nil {
				return nil, &ModelFormatError{Field: wfield + ".leafValues", Err: errMissing}
			}
			stage.weak = append(stage.weak, rawWeak{nodes: w.InternalNodes, leaves: w.LeafValues})
		}
		raw.stages = append(raw.stages, stage)
	}
	return raw, nil
}

// build validates the raw description and resolves the rectangle references.
func (raw *rawCascade) build() (*Cascade, error) {
	if raw.featureType != "" && !strings.EqualFold(raw.featureType, "LBP") {
		return nil, &ModelFormatError{Field: "featureType", Err: fmt.Errorf("unsupported feature type %q", raw.featureType)}
	}
	if raw.height == nil {
		return nil, &ModelFormatError{Field: "height", Err: errMissing}
	}
	if raw.width == nil {
		return nil, &ModelFormatError{Field: "width", Err: errMissing}
	}
	if *raw.height <= 0 || *raw.width <= 0 {
		return nil, &InvalidGeometryError{
			Field:  "window",
			Reason: fmt.Sprintf("window size must be positive, got %dx%d", *raw.height, *raw.width),
		}
	}

	cascade := &Cascade{
		Height: int(*raw.height),
		Width:  int(*raw.width),
		Rects:  make([]Rect, 0, len(raw.rects)),
		Stages: make([]Stage, 0, len(raw.stages)),
	}

	for i, r := range raw.rects {
		field := fmt.Sprintf("features[%d].rect", i)
		if len(r) != 4 {
			return nil, &ModelFormatError{Field: field, Err: fmt.Errorf("expected 4 integers, got %d", len(r))}
		}
		if r[2] < 0 || r[3] < 0 {
			return nil, &InvalidGeometryError{Field: field, Reason: "negative rectangle size"}
		}
		cascade.Rects = append(cascade.Rects, Rect{X: int(r[0]), Y: int(r[1]), Width: int(r[2]), Height: int(r[3])})
	}

	for i, s := range raw.stages {
		field := fmt.Sprintf("stages[%d]", i)
		if s.threshold == nil {
			return nil, &ModelFormatError{Field: field + ".stageThreshold", Err: errMissing}
		}
		stage := Stage{
			Threshold: *s.threshold,
			Features:  make([]Feature, 0, len(s.weak)),
		}
		for j, w := range s.weak {
			feature, err := cascade.buildFeature(w, fmt.Sprintf("%s.weakClassifiers[%d]", field, j))
			if err != nil {
				return nil, err
			}
			stage.Features = append(stage.Features, feature)
		}
		cascade.Stages = append(cascade.Stages, stage)
	}
	return cascade, nil
}

func (c *Cascade) buildFeature(w rawWeak, field string) (Feature, error) {
	if len(w.nodes) != internalNodesLen {
		return Feature{}, &ModelFormatError{
			Field: field + ".internalNodes",
			Err:   fmt.Errorf("expected %d integers, got %d", internalNodesLen, len(w.nodes)),
		}
	}
	if len(w.leaves) != 2 {
		return Feature{}, &ModelFormatError{
			Field: field + ".leafValues",
			Err:   fmt.Errorf("expected 2 values, got %d", len(w.leaves)),
		}
	}

	idx := w.nodes[rectIndexPos]
	if idx < 0 || idx >= int64(len(c.Rects)) {
		return Feature{}, &InvalidGeometryError{
			Field:  field + ".internalNodes",
			Reason: fmt.Sprintf("rectangle index %d out of range [0, %d)", idx, len(c.Rects)),
		}
	}

	f := Feature{
		RectIndex:  int(idx),
		FailWeight: w.leaves[0],
		PassWeight: w.leaves[1],
	}
	for k, v := range w.nodes[tableOffset:] {
		if v < math.MinInt32 || v > math.MaxUint32 {
			return Feature{}, &ModelFormatError{
				Field: field + ".internalNodes",
				Err:   fmt.Errorf("table word %d out of 32-bit range: %d", k, v),
			}
		}
		f.Table[k] = uint32(v)
	}
	return f, nil
}
