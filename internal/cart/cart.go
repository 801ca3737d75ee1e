package cart

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/bistrodesk/orderflow/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Line is one menu item added to the cart. AddItem never merges lines, so
// Quantity is always 1 for lines built through the cart.
type Line struct {
	ItemName  string
	UnitPrice decimal.Decimal
	Quantity  int
}

func (l Line) subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart accumulates lines for a single session. It is safe for concurrent use
// but is never shared between sessions.
type Cart struct {
	mu    sync.Mutex
	lines []Line
	total decimal.Decimal
}

func New() *Cart {
	return &Cart{total: decimal.Zero}
}

// AddItem appends a new line with quantity 1 and recomputes the total. Any
// promotion applied earlier is discarded by the recompute.
func (c *Cart) AddItem(name string, price decimal.Decimal) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "item name is required")
	}
	if price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "item price must not be negative")
	}
	if !price.Equal(price.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "item price must not have more than 2 decimal places").
			WithDetails(map[string]any{"price": price.String()})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, Line{ItemName: name, UnitPrice: price, Quantity: 1})
	c.recompute()
	return nil
}

// RecomputeTotal resets the total to the exact sum of the lines.
func (c *Cart) RecomputeTotal() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recompute()
	return c.total
}

func (c *Cart) recompute() {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.subtotal())
	}
	c.total = total
}

// ApplyPromotion reduces the current total by percent. Successive promotions
// compound.
func (c *Cart) ApplyPromotion(percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return pkgerrors.New(pkgerrors.CodeValidation, "promotion percent must be between 0 and 100").
			WithDetails(map[string]any{"percent": percent.String()})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	factor := decimal.NewFromInt(1).Sub(percent.Div(hundred))
	c.total = c.total.Mul(factor)
	return nil
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Cart) snapshot() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *Cart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
}

func (c *Cart) clear() {
	c.lines = nil
	c.total = decimal.Zero
}
