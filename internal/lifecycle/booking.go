package lifecycle

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/mmeshcher/branchqueue/internal/model"
	"github.com/mmeshcher/branchqueue/internal/validation"
)

// BookingRequest содержит бронирование клиента в том виде, в каком оно пришло из API.
type BookingRequest struct {
	BranchID    string         `json:"branchId"`
	Time        string         `json:"time"`
	UserInfo    model.Customer `json:"userInfo"`
	ServiceType string         `json:"serviceType"`
	Service     *model.Service `json:"service,omitempty"`
	EntityType  string         `json:"entityType"`
}

// ValidateBooking проверяет запрос по каталогу услуг банка и форматам
// полей клиента.
func ValidateBooking(req BookingRequest, deals []string) error {
	if req.BranchID == "" {
		return model.Invalid("branchId", "required")
	}
	if req.EntityType != model.EntityIndividual && req.EntityType != model.EntityLegal {
		return model.Invalid("entityType", fmt.Sprintf("unsupported entity type %q", req.EntityType))
	}
	if len(deals) == 0 {
		return model.Invalid("entityType", "bank offers no deals for this entity type")
	}
	if req.EntityType == model.EntityLegal && strings.TrimSpace(req.UserInfo.CompanyName) == "" {
		return model.Invalid("companyName", "required for legal entities")
	}
	if !validation.IsValidName(req.UserInfo.Name) {
		return model.Invalid("name", "must be 2-50 letters or spaces")
	}
	if !validation.IsValidPhone(req.UserInfo.Phone) {
		return model.Invalid("phone", "must be 10-15 digits with an optional leading +")
	}
	if !validation.IsValidEmail(req.UserInfo.Email) {
		return model.Invalid("email", "malformed address")
	}

	service := req.ResolvedService()
	if service.Type == "" {
		return model.Invalid("serviceType", "required")
	}
	if !slices.Contains(deals, service.Type) {
		return model.Invalid("serviceType", fmt.Sprintf("deal %q is not offered to %s", service.Type, req.EntityType))
	}
	return nil
}

// ResolvedService возвращает запрошенную услугу или тип услуги по умолчанию.
func (req BookingRequest) ResolvedService() model.Service {
	if req.Service != nil && req.Service.Type != "" {
		s := *req.Service
		if s.Description == "" {
			s.Description = s.Type
		}
		return s
	}
	return model.Service{Type: req.ServiceType, Description: req.ServiceType}
}

// NewAccessCode возвращает случайный четырёхзначный код в диапазоне [1000, 9999).
func NewAccessCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000-1))
	if err != nil {
		return "", fmt.Errorf("generate access code: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()+1000), nil
}
