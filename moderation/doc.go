// Link-policy enforcement engine for group chats.
//
// This package (`github.com/groupwarden/warden/moderation`) contains a small real-time enforcement state machine: inbound message events are classified against a configured set of link signatures, privileged senders are exempted, and repeat offenders walk an escalating sanction ladder (notice, temporary restriction, permanent ban) while a durable per-(group,user) ledger tracks their violation counts. The engine serializes all work per (group,user) key, so concurrent or redelivered events can never under-escalate or double-fire a sanction.
//
// See `cmd/warden` for a daemon built on this package.
package moderation
