package types

type HandSnapshot struct {
	Visible   bool       `json:"visible"`
	Landmarks []Landmark `json:"landmarks,omitempty"`
}

type UISnapshot struct {
	Type  string                  `json:"type"`
	Seq   uint64                  `json:"seq"`
	Hands map[string]HandSnapshot `json:"hands"`
}
