package geo

// Style is the visual style attached to a feature. It is one of
// PointStyle, LineStyle or PolygonStyle.
type Style interface {
	isStyle()
}

// Stroke is an outline.
type Stroke struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// PointStyle draws a circle marker.
type PointStyle struct {
	Stroke    Stroke  `json:"stroke"`
	FillColor string  `json:"fillColor,omitempty"`
	Radius    float64 `json:"radius"`
}

// LineStyle draws a stroke, optionally dashed.
type LineStyle struct {
	Color       string    `json:"color"`
	DashPattern []float64 `json:"dashPattern,omitempty"`
	Width       float64   `json:"width"`
}

// PolygonStyle draws a translucent fill with an outline.
type PolygonStyle struct {
	FillColor   string  `json:"fillColor"`
	StrokeColor string  `json:"strokeColor"`
	FillOpacity float64 `json:"fillOpacity"`
	StrokeWidth float64 `json:"strokeWidth"`
}

func (PointStyle) isStyle()   {}
func (LineStyle) isStyle()    {}
func (PolygonStyle) isStyle() {}
