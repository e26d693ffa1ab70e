package farmer

type PingArgs struct {
}

type PingReply struct {
	FarmerID string
}

type ChallengeArgs struct {
	ShardHash string
	Challenge []byte
}

type ChallengeReply struct {
	Response []byte
	Index    int
	Branch   [][]byte
}

type TransferDataArgs struct {
	Checksum uint32
	Data     []byte
}

type TransferDataReply struct {
	NumBytesReceived int
}

type StoreShardArgs struct {
	ShardHash string
	Checksum  uint32
	Leaves    []string // hex encoded audit tree leaves
}

type StoreShardReply struct {
}

type MirrorShardArgs struct {
	ShardHash string
	Target    string // address of the receiving farmer
}

type MirrorShardReply struct {
}
