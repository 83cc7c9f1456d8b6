// Package models defines the core domain models for the equb ledger.
//
// # Projection Models
//
// The relational projection is made of four tables:
//   - Group: a rotating-savings circle and its lifecycle status
//   - Membership: a user's role and standing within one group
//   - Contribution: one member's payment obligation for one round
//   - Payout: the pooled amount paid to one recipient for one round
//
// # Audit Log
//
// AuditEvent rows are append-only and are the source of truth for what
// happened. The projection tables must always be reconstructable from them.
//
// # Design Principles
//
// 1. **Exact money**: amounts are decimal.Decimal, never float64
// 2. **IDs, not pointers**: relationships are expressed as ID strings
// 3. **No deletes**: rows are status-transitioned, never removed
package models
