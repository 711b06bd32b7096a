package apimock

import (
	"sort"
	"sync"
)

type Company struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	CNPJ      string     `json:"cnpj"`
	State     string     `json:"state"`
	City      string     `json:"city"`
	Address   string     `json:"address"`
	Sector    string     `json:"sector"`
	Products  []Product  `json:"products"`
	Employees []Employee `json:"employees"`
	Services  []Service  `json:"services"`
}

type Product struct {
	ID                 int     `json:"id"`
	ProductName        string  `json:"productName"`
	ProductDescription string  `json:"productDescription"`
	Price              float64 `json:"price"`
}

type Employee struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Position string `json:"position"`
}

type Service struct {
	ID                 int    `json:"id"`
	ServiceName        string `json:"serviceName"`
	ServiceDescription string `json:"serviceDescription"`
}

// MemoryStore holds the companies in memory. All reads return copies.
type MemoryStore struct {
	mu        sync.Mutex
	companies map[int]*Company
	nextID    int
	nextItem  int
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.Reset()
	return s
}

// Reset clears all state and restarts id allocation at 1.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies = map[int]*Company{}
	s.nextID = 1
	s.nextItem = 1
}

func (s *MemoryStore) CreateCompany(c Company) Company {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextID
	s.nextID++
	if c.Products == nil {
		c.Products = []Product{}
	}
	if c.Employees == nil {
		c.Employees = []Employee{}
	}
	if c.Services == nil {
		c.Services = []Service{}
	}
	s.companies[c.ID] = &c
	return c.clone()
}

func (s *MemoryStore) Company(id int) (Company, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return Company{}, false
	}
	return c.clone(), true
}

func (s *MemoryStore) Companies() []Company {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) DeleteCompany(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[id]; !ok {
		return false
	}
	delete(s.companies, id)
	return true
}

// Update runs fn on the stored company under the store lock. nextItem
// hands out ids for sub-resources.
func (s *MemoryStore) Update(id int, fn func(c *Company, nextItem func() int)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return false
	}
	fn(c, func() int {
		n := s.nextItem
		s.nextItem++
		return n
	})
	return true
}

func (c Company) clone() Company {
	c.Products = append([]Product{}, c.Products...)
	c.Employees = append([]Employee{}, c.Employees...)
	c.Services = append([]Service{}, c.Services...)
	return c
}
