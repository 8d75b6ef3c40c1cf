package ledger

// Models lists every ledger table in migration order.
func Models() []any {
	return []any{
		&Account{},
		&Posting{},
		&AuditNote{},
	}
}
