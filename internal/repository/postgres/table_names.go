package postgres

import "fmt"

// TableNames holds dynamically prefixed table names. Each environment
// (dev_, test_, prod_) gets its own set of tables in the shared database.
type TableNames struct {
	Sessions      string
	Conversations string
	Messages      string
	Deals         string
	Deliverables  string
	Ledger        string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Sessions:      fmt.Sprintf("%ssessions", prefix),
		Conversations: fmt.Sprintf("%sconversations", prefix),
		Messages:      fmt.Sprintf("%smessages", prefix),
		Deals:         fmt.Sprintf("%sdeals", prefix),
		Deliverables:  fmt.Sprintf("%sdeliverables", prefix),
		Ledger:        fmt.Sprintf("%scredit_ledger", prefix),
	}
}
