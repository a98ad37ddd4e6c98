package dto

// Success é o envelope das respostas bem-sucedidas
type Success struct {
	Status  string `json:"status"` // sempre "success"
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// Error é o envelope de erro; Kind é estável para máquinas
type Error struct {
	Error   bool     `json:"error"`
	Code    int      `json:"code"`
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Data    struct{} `json:"data"`
}

// OddsResponse é o corpo de GET /api/getfancysingle
type OddsResponse struct {
	Data any `json:"data"`
}
