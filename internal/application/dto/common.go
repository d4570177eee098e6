package dto

// PageRequest paginación para listados.
type PageRequest struct {
	Limit int `query:"limit" validate:"min=1,max=200"`
}

// DefaultPage aplica el valor por defecto si Limit es cero.
func (p *PageRequest) DefaultPage() {
	if p.Limit <= 0 {
		p.Limit = 50
	}
}

// ErrorResponse cuerpo de error HTTP.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
