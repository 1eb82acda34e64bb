package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"github.com/mitchellh/mapstructure"
	log "github.com/sirupsen/logrus"
	"mining-coordinator/util"
	"net/http"
	"net/url"
	"strings"
)

var errInvalidInitData = errors.New("invalid init data")

// initUser 客户端提交的身份信息
type initUser struct {
	Id       string `mapstructure:"id"`
	Username string `mapstructure:"username"`
}

// parseInitData 支持 JSON 对象或 URL 查询串两种格式，user 字段均为 JSON
func parseInitData(initData string) (map[string]interface{}, *initUser, error) {
	var rawUser interface{}

	trimmed := strings.TrimSpace(initData)
	if strings.HasPrefix(trimmed, "{") {
		var data map[string]interface{}
		if err := decodeNumbers([]byte(trimmed), &data); err != nil {
			return nil, nil, errInvalidInitData
		}
		rawUser = data["user"]
	} else {
		values, err := url.ParseQuery(trimmed)
		if err != nil || values.Get("user") == "" {
			return nil, nil, errInvalidInitData
		}
		if err := decodeNumbers([]byte(values.Get("user")), &rawUser); err != nil {
			return nil, nil, errInvalidInitData
		}
	}

	userMap, ok := rawUser.(map[string]interface{})
	if !ok {
		return nil, nil, errInvalidInitData
	}

	var user initUser
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &user,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := decoder.Decode(userMap); err != nil || !util.IsValidMinerId(user.Id) {
		return nil, nil, errInvalidInitData
	}
	if user.Username == "" {
		user.Username = "user" + user.Id
	}
	return userMap, &user, nil
}

func decodeNumbers(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func (a *Api) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InitData string `json:"initData"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid init data")
		return
	}

	userMap, user, err := parseInitData(req.InitData)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user data")
		return
	}

	account, err := a.store.ProvisionAccount(r.Context(), user.Id, user.Username)
	if err != nil {
		log.Errorf("Unable to provision account %s: %v", user.Id, err)
		writeError(w, http.StatusInternalServerError, "Failed to verify user")
		return
	}

	a.invalidateLeaderboard(r.Context())

	log.WithField("minerId", user.Id).Debug("Account verified")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    userMap,
		"account": account,
	})
}
