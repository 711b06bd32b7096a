package apimock

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const (
	msgCompanyNotFound = "Empresa não encontrada"
	msgCompanyDeleted  = "Empresa deletada com sucesso"
	msgInvalidCNPJ     = "CNPJ deve ter 14 dígitos"
	msgNameRequired    = "Nome é obrigatório"
	msgInvalidJSON     = "JSON inválido"
	msgInvalidID       = "ID deve ser um número inteiro"
	msgInvalidParentID = "ID da empresa deve ser um número inteiro"
)

// fieldError mirrors the express-validator error entries the real API
// returns for malformed path parameters.
type fieldError struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Msg      string `json:"msg"`
	Path     string `json:"path"`
	Location string `json:"location"`
}

type companyInput struct {
	Name    string `json:"name"`
	CNPJ    string `json:"cnpj"`
	State   string `json:"state"`
	City    string `json:"city"`
	Address string `json:"address"`
	Sector  string `json:"sector"`
}

// ListCompanies handles GET /company.
func (h *Handler) ListCompanies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Companies())
}

// CreateCompany handles POST /company.
func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var in companyInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeMessage(w, http.StatusBadRequest, msgNameRequired)
		return
	}
	if !validCNPJ(in.CNPJ) {
		writeMessage(w, http.StatusBadRequest, msgInvalidCNPJ)
		return
	}
	c := h.store.CreateCompany(Company{
		Name:    in.Name,
		CNPJ:    in.CNPJ,
		State:   in.State,
		City:    in.City,
		Address: in.Address,
		Sector:  in.Sector,
	})
	h.logger.Info("company created", "id", c.ID)
	writeJSON(w, http.StatusCreated, c)
}

// GetCompany handles GET /company/{id}.
func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "id", "id", msgInvalidID)
	if !ok {
		return
	}
	c, found := h.store.Company(id)
	if !found {
		writeMessage(w, http.StatusNotFound, msgCompanyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteCompany handles DELETE /company/{id}.
func (h *Handler) DeleteCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "id", "id", msgInvalidID)
	if !ok {
		return
	}
	if !h.store.DeleteCompany(id) {
		writeMessage(w, http.StatusNotFound, msgCompanyNotFound)
		return
	}
	writeMessage(w, http.StatusOK, msgCompanyDeleted)
}

// subresource describes a list nested under a company. All three share
// the same routes and error rules.
type subresource[T any] struct {
	segment  string
	param    string
	noun     string
	article  string
	items    func(c *Company) *[]T
	id       func(item *T) *int
	validate func(item T) string
}

var products = subresource[Product]{
	segment: "products",
	param:   "productId",
	noun:    "Produto",
	article: "do produto",
	items:   func(c *Company) *[]Product { return &c.Products },
	id:      func(p *Product) *int { return &p.ID },
	validate: func(p Product) string {
		switch {
		case strings.TrimSpace(p.ProductName) == "":
			return "Nome do produto é obrigatório"
		case p.Price < 0:
			return "Preço não pode ser negativo"
		}
		return ""
	},
}

var employees = subresource[Employee]{
	segment: "employees",
	param:   "employeeId",
	noun:    "Funcionário",
	article: "do funcionário",
	items:   func(c *Company) *[]Employee { return &c.Employees },
	id:      func(e *Employee) *int { return &e.ID },
	validate: func(e Employee) string {
		if strings.TrimSpace(e.Name) == "" {
			return "Nome do funcionário é obrigatório"
		}
		return ""
	},
}

var services = subresource[Service]{
	segment: "services",
	param:   "serviceId",
	noun:    "Serviço",
	article: "do serviço",
	items:   func(c *Company) *[]Service { return &c.Services },
	id:      func(s *Service) *int { return &s.ID },
	validate: func(s Service) string {
		if strings.TrimSpace(s.ServiceName) == "" {
			return "Nome do serviço é obrigatório"
		}
		return ""
	},
}

func mountSubresource[T any](r chi.Router, h *Handler, sr subresource[T]) {
	notFound := sr.noun + " não encontrado"
	deleted := sr.noun + " deletado com sucesso"
	invalidID := "ID " + sr.article + " deve ser um número inteiro"

	r.Route("/"+sr.segment, func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			companyID, ok := intParam(w, r, "id", "companyId", msgInvalidParentID)
			if !ok {
				return
			}
			c, found := h.store.Company(companyID)
			if !found {
				writeMessage(w, http.StatusNotFound, msgCompanyNotFound)
				return
			}
			writeJSON(w, http.StatusOK, *sr.items(&c))
		})

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			companyID, ok := intParam(w, r, "id", "companyId", msgInvalidParentID)
			if !ok {
				return
			}
			if _, found := h.store.Company(companyID); !found {
				writeMessage(w, http.StatusNotFound, msgCompanyNotFound)
				return
			}
			var item T
			if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
				writeMessage(w, http.StatusBadRequest, msgInvalidJSON)
				return
			}
			if msg := sr.validate(item); msg != "" {
				writeMessage(w, http.StatusBadRequest, msg)
				return
			}
			created := h.store.Update(companyID, func(c *Company, nextItem func() int) {
				*sr.id(&item) = nextItem()
				list := sr.items(c)
				*list = append(*list, item)
			})
			if !created {
				writeMessage(w, http.StatusNotFound, msgCompanyNotFound)
				return
			}
			writeJSON(w, http.StatusCreated, item)
		})

		r.Get("/{"+sr.param+"}", func(w http.ResponseWriter, r *http.Request) {
			companyID, ok := intParam(w, r, "id", "companyId", msgInvalidParentID)
			if !ok {
				return
			}
			itemID, ok := intParam(w, r, sr.param, sr.param, invalidID)
			if !ok {
				return
			}
			c, found := h.store.Company(companyID)
			if !found {
				writeMessage(w, http.StatusNotFound, msgCompanyNotFound)
				return
			}
			for _, item := range *sr.items(&c) {
				if *sr.id(&item) == itemID {
					writeJSON(w, http.StatusOK, item)
					return
				}
			}
			writeMessage(w, http.StatusNotFound, notFound)
		})

		r.Delete("/{"+sr.param+"}", func(w http.ResponseWriter, r *http.Request) {
			companyID, ok := intParam(w, r, "id", "companyId", msgInvalidParentID)
			if !ok {
				return
			}
			itemID, ok := intParam(w, r, sr.param, sr.param, invalidID)
			if !ok {
				return
			}
			removed := false
			companyFound := h.store.Update(companyID, func(c *Company, _ func() int) {
				list := sr.items(c)
				for i := range *list {
					if *sr.id(&(*list)[i]) == itemID {
						*list = append((*list)[:i], (*list)[i+1:]...)
						removed = true
						return
					}
				}
			})
			switch {
			case !companyFound:
				writeMessage(w, http.StatusNotFound, msgCompanyNotFound)
			case !removed:
				writeMessage(w, http.StatusNotFound, notFound)
			default:
				writeMessage(w, http.StatusOK, deleted)
			}
		})
	})
}

// intParam reads a positive integer URL parameter. On failure it writes the
// 400 validation response, reporting the parameter under field.
func intParam(w http.ResponseWriter, r *http.Request, param, field, msg string) (int, bool) {
	raw := chi.URLParam(r, param)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errors": []fieldError{{Type: "field", Value: raw, Msg: msg, Path: field, Location: "params"}},
		})
		return 0, false
	}
	return n, true
}

func validCNPJ(s string) bool {
	if len(s) != 14 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
