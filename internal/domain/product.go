package domain

// ProductVisibility is one product detected on a shelf and the estimated
// percentage (0-100) of its front face that is visible.
type ProductVisibility struct {
	Product    string  `json:"product" yaml:"product"`
	Visibility float64 `json:"visibility" yaml:"visibility"`
}

// ShelfAnalysis is the outcome of one analysis request
type ShelfAnalysis struct {
	RequestID  string `json:"requestId"`
	Model      string `json:"model"`
	ImageCount int    `json:"imageCount"`
	// Products holds the model's list elements. Unless strict validation is
	// enabled they are passed through exactly as decoded.
	Products []any `json:"products"`
}
