package bridge

import "github.com/pyropy/dsn/core/model"

type RegisterFarmerArgs struct {
	ID      string // empty for a new farmer
	Address string
}

type RegisterFarmerReply struct {
	ID string
}

type HeartbeatArgs struct {
	FarmerID string
}

type HeartbeatReply struct {
}

type CreateContractArgs struct {
	ShardHash string
	Size      int64
	Tree      model.AuditTree
}

// Placement tells the uploader where a contracted copy of the shard goes.
type Placement struct {
	ContractID string
	FarmerID   string
	Address    string
}

type CreateContractReply struct {
	Placements []Placement
}

type ScheduleAuditArgs struct {
	ShardHash string
}

type ScheduleAuditReply struct {
	Items []model.QueueItem
}

type ListContactsArgs struct {
}

type ListContactsReply struct {
	Contacts []model.Contact
}
