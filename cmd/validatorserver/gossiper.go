package main

import (
	"context"
	"encoding/json"
	"net/http"

	core "github.com/saicha124/hierfed/core"
)

// httpGossiper implements core.HTTPGossiper over real HTTP POSTs to
// peer validators and fog nodes, with bounded retry (spec §4.2 step 5:
// "fire-and-forget with bounded retry").
type httpGossiper struct {
	client *http.Client
	retry  core.RetryConfig
}

func newHTTPGossiper() *httpGossiper {
	return &httpGossiper{client: &http.Client{}, retry: core.RetryConfig{MaxAttempts: 3, BaseDelay: 0}}
}

type votePayload struct {
	Vote  core.Vote  `json:"vote"`
	Share core.Share `json:"share"`
}

func (g *httpGossiper) GossipVote(ctx context.Context, peerURL string, vote core.Vote, sh core.Share) error {
	body, err := json.Marshal(votePayload{Vote: vote, Share: sh})
	if err != nil {
		return err
	}
	resp, err := core.PostJSON(ctx, g.client, peerURL+"/receive_vote", body, g.retry)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (g *httpGossiper) ForwardShare(ctx context.Context, fogURL string, sh core.Share) error {
	body, err := json.Marshal(sh)
	if err != nil {
		return err
	}
	resp, err := core.PostJSON(ctx, g.client, fogURL+"/receive_share", body, g.retry)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
