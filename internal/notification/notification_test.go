/*
Copyright 2024 Fable Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/fablehq/fable/config"
)

func TestSlackNotificationPostsToWebhook(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var body string
	httpmock.RegisterResponder("POST", "https://hooks.slack.test/services/T000/B000",
		func(req *http.Request) (*http.Response, error) {
			raw, err := io.ReadAll(req.Body)
			assert.NoError(t, err)
			body = string(raw)
			return httpmock.NewJsonResponse(200, map[string]string{"ok": "true"})
		})

	conf := &config.Configuration{}
	conf.Notification.Slack.WebhookUrl = "https://hooks.slack.test/services/T000/B000"
	config.MockConfig(conf)

	SlackNotification(errors.New("sync worker crashed"))

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.True(t, strings.Contains(body, "sync worker crashed"))
	assert.True(t, strings.Contains(body, "Error From Fable"))
}

func TestSlackNotificationSkipsOnMissingConfig(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{})

	SlackNotification(errors.New("ignored"))

	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}
