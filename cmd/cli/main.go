package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/nazeru/tx-lab-shop-go/internal/bench"
	"github.com/nazeru/tx-lab-shop-go/internal/shopclient"
)

type scenario struct {
	Name        string
	Description string
}

var scenarios = []scenario{
	{"browse", "Refresh the product list"},
	{"add", "Add the selected product to the cart"},
	{"cart", "Show the cart"},
	{"checkout", "Place an order for the cart"},
	{"bench", "Race 50 buyers for 5 units"},
}

type model struct {
	client      *shopclient.Client
	session     string
	products    []shopclient.Product
	selectedPrd int
	selectedScn int
	status      string
	metrics     string
	busy        bool
}

func initialModel(c *shopclient.Client, session string) model {
	return model{client: c, session: session, status: "Loading products..."}
}

func (m model) Init() tea.Cmd {
	return runScenarioCmd(m.client, m.session, "browse", "")
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up":
			if m.selectedPrd > 0 {
				m.selectedPrd--
			}
		case "down":
			if m.selectedPrd < len(m.products)-1 {
				m.selectedPrd++
			}
		case "left":
			if m.selectedScn > 0 {
				m.selectedScn--
			}
		case "right":
			if m.selectedScn < len(scenarios)-1 {
				m.selectedScn++
			}
		case "enter":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Running..."
			productID := ""
			if m.selectedPrd < len(m.products) {
				productID = m.products[m.selectedPrd].ID
			}
			return m, runScenarioCmd(m.client, m.session, scenarios[m.selectedScn].Name, productID)
		}
	case scenarioResult:
		m.busy = false
		m.status = msg.status
		m.metrics = msg.metrics
		if msg.products != nil {
			m.products = msg.products
			if m.selectedPrd >= len(m.products) {
				m.selectedPrd = 0
			}
		}
	}
	return m, nil
}

func (m model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "tx-lab-shop-go console")
	fmt.Fprintf(b, "Session: %s\n\n", m.session)
	fmt.Fprintln(b, "Products:")
	if len(m.products) == 0 {
		fmt.Fprintln(b, "   (none)")
	}
	for i, p := range m.products {
		marker := " "
		if i == m.selectedPrd {
			marker = ">"
		}
		fmt.Fprintf(b, " %s %-24s %8s  stock %d\n", marker, p.Name, p.Price.StringFixed(2), p.Stock)
	}
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Actions (use left/right):")
	for i, scn := range scenarios {
		marker := " "
		if i == m.selectedScn {
			marker = "*"
		}
		fmt.Fprintf(b, " %s %s - %s\n", marker, scn.Name, scn.Description)
	}
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Status: %s\n", m.status)
	if m.metrics != "" {
		fmt.Fprintf(b, "%s\n", m.metrics)
	}
	fmt.Fprintln(b, "\nControls: up/down select product, left/right select action, enter to run, q to quit")
	return b.String()
}

type scenarioResult struct {
	status   string
	metrics  string
	products []shopclient.Product
}

func runScenarioCmd(c *shopclient.Client, session, scn, productID string) tea.Cmd {
	return func() tea.Msg {
		return runScenario(context.Background(), c, session, scn, productID)
	}
}

func runScenario(ctx context.Context, c *shopclient.Client, session, scn, productID string) scenarioResult {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch scn {
	case "browse":
		products, err := c.ListProducts(ctx)
		if err != nil {
			return scenarioResult{status: fmt.Sprintf("Listing products failed: %v", err)}
		}
		if products == nil {
			products = []shopclient.Product{}
		}
		return scenarioResult{status: fmt.Sprintf("%d product(s)", len(products)), products: products}
	case "add":
		if productID == "" {
			return scenarioResult{status: "No product selected"}
		}
		cart, err := c.AddItem(ctx, session, productID, 1)
		if err != nil {
			return scenarioResult{status: fmt.Sprintf("Add failed: %v", err)}
		}
		return scenarioResult{status: "Added to cart", metrics: cartLine(cart)}
	case "cart":
		cart, err := c.GetCart(ctx, session)
		if err != nil {
			return scenarioResult{status: fmt.Sprintf("Cart failed: %v", err)}
		}
		return scenarioResult{status: "Cart", metrics: cartLine(cart)}
	case "checkout":
		res, err := c.PlaceOrder(ctx, session, uuid.NewString(), shopclient.Customer{
			Name: "Console Buyer", Email: "console@example.com", Address: "1 Terminal Road",
		})
		var apiErr *shopclient.APIError
		if errors.As(err, &apiErr) {
			return scenarioResult{status: fmt.Sprintf("Checkout rejected (%s): %s", apiErr.Kind, apiErr.Message)}
		}
		if err != nil {
			return scenarioResult{status: fmt.Sprintf("Checkout failed: %v", err)}
		}
		return scenarioResult{status: fmt.Sprintf("Order %s %s, total %s",
			res.Receipt.OrderID, res.Receipt.Status, res.Receipt.TotalAmount.StringFixed(2))}
	case "bench":
		res, err := bench.RunOversell(ctx, c, bench.Config{Stock: 5, Buyers: 50, Concurrency: 10})
		if err != nil {
			return scenarioResult{status: fmt.Sprintf("Benchmark failed: %v", err)}
		}
		status := "Benchmark finished, no oversell"
		if !res.Consistent() {
			status = "Benchmark finished, INCONSISTENT"
		}
		return scenarioResult{status: status, metrics: fmt.Sprintf(
			"placed=%d rejected=%d errors=%d final_stock=%d p50=%.1fms p99=%.1fms",
			res.Placed, res.Rejected, res.Errors, res.FinalStock, res.P50LatencyMs, res.P99LatencyMs)}
	default:
		return scenarioResult{status: fmt.Sprintf("Unknown scenario %q", scn)}
	}
}

func cartLine(c shopclient.Cart) string {
	return fmt.Sprintf("Cart: %d item(s), total %s", c.Summary.TotalItems, c.Summary.TotalPrice.StringFixed(2))
}

func main() {
	runCmd := flag.String("run", "", "run action: browse|add|cart|checkout|bench")
	product := flag.String("product", "", "product ID for the add action")
	session := flag.String("session", "", "cart session ID (random when empty)")
	flag.Parse()

	if *session == "" {
		*session = "cli-" + uuid.NewString()
	}
	client := shopclient.New(getenv("SHOP_BASE_URL", "http://localhost:8080"), nil)

	if *runCmd != "" {
		res := runScenario(context.Background(), client, *session, *runCmd, *product)
		fmt.Println(res.status)
		if res.metrics != "" {
			fmt.Println(res.metrics)
		}
		for _, p := range res.products {
			fmt.Printf("%s  %-24s %8s  stock %d\n", p.ID, p.Name, p.Price.StringFixed(2), p.Stock)
		}
		return
	}

	p := tea.NewProgram(initialModel(client, *session))
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
