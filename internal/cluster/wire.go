package cluster

import "github.com/fenwick-labs/chatcluster/internal/model"

// Wire payloads for the peer RPCs. All peer calls are plain HTTP+JSON: one
// *http.Client call per request, JSON body in and out, no persistent
// connection pool.

type registerRequest struct {
	FollowerID      string `json:"follower_id"`
	FollowerAddress string `json:"follower_address"`
}

type registerResponse struct {
	ErrorCode      model.StatusCode       `json:"error_code"`
	Snapshot       snapshotWire           `json:"snapshot"`
	OtherFollowers []model.ClusterMember  `json:"other_followers"`
}

type snapshotWire struct {
	Users           []*model.User           `json:"users"`
	Messages        []*model.Message        `json:"messages"`
	DeletedMessages []*model.DeletedMessage `json:"deleted_messages"`
}

type okResponse struct {
	ErrorCode model.StatusCode `json:"error_code"`
}

type acceptUpdatesRequest struct {
	UpdateData []byte `json:"update_data"`
}

type updateLeaderRequest struct {
	NewLeaderAddress string `json:"new_leader_address"`
	NewLeaderID      string `json:"new_leader_id"`
}

type updateFollowersRequest struct {
	UpdateData []byte `json:"update_data"`
}

type clusterMemberWire struct {
	PeerID      string `json:"peer_id"`
	PeerAddress string `json:"peer_address"`
}
