package prompts

import (
	"context"
	"fmt"
)

const (
	report_client_username = "client.username"
	report_client_avatar   = "client.avatar"
)

const usernameQuery = `query Username($accountId: Int!) {
  users(where: {id: {_eq: $accountId}}, limit: 1) {
    username
  }
}`

const profileQuery = `query Profile($username: citext!) {
  users(where: {username: {_eq: $username}}, limit: 1) {
    id
    username
    image
    cached_image
  }
}`

type usernameRequest struct {
	AccountID int64 `json:"accountId"`
}

type usernameResponse struct {
	Users []struct {
		Username string `json:"username"`
	} `json:"users"`
}

type profileRequest struct {
	Username string `json:"username"`
}

type profileResponse struct {
	Users []struct {
		ID          int64    `json:"id"`
		Username    string   `json:"username"`
		Image       ImageRef `json:"image"`
		CachedImage ImageRef `json:"cached_image"`
	} `json:"users"`
}

// Username maps an account id to its username. Every error is soft, callers are
// expected to treat a failure as "no username".
func (c *Client) Username(ctx context.Context, accountID int64) (string, error) {
	ctx, span := tracer.Start(ctx, "client:Username")
	defer span.End()

	res, err := graphqlQuery[usernameResponse](
		ctx, c, "Username", usernameQuery,
		usernameRequest{AccountID: accountID},
	)
	if err != nil {
		c.tel.ReportBroken(report_client_username, err, accountID)
		return "", err
	}
	if len(res.Users) == 0 || res.Users[0].Username == "" {
		err = fmt.Errorf("%w: no user with account id %d", ErrIdentityUnresolved, accountID)
		c.tel.ReportWarning(report_client_username, err)
		return "", err
	}
	return res.Users[0].Username, nil
}

// Avatar returns the avatar url of a username, the cached image wins over the plain
// image like it does for books.
func (c *Client) Avatar(ctx context.Context, username string) (string, error) {
	ctx, span := tracer.Start(ctx, "client:Avatar")
	defer span.End()

	res, err := graphqlQuery[profileResponse](
		ctx, c, "Profile", profileQuery,
		profileRequest{Username: username},
	)
	if err != nil {
		c.tel.ReportWarning(report_client_avatar, err, username)
		return "", err
	}
	if len(res.Users) == 0 {
		err = fmt.Errorf("%w: no user named %q", ErrIdentityUnresolved, username)
		c.tel.ReportWarning(report_client_avatar, err)
		return "", err
	}
	user := res.Users[0]
	return resolveImage(user.CachedImage, user.Image), nil
}
