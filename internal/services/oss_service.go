package services

import (
	"errors"
	"strings"

	"modelhub-backend/config"

	"github.com/aliyun/alibaba-cloud-sdk-go/services/sts"
)

var ErrSTSNotConfigured = errors.New("OSS upload credentials are not configured")

type STSCredentials struct {
	AccessKeyId     string `json:"accessKeyId"`
	AccessKeySecret string `json:"accessKeySecret"`
	SecurityToken   string `json:"securityToken"`
	Expiration      string `json:"expiration"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
}

// STSIssuer hands out short-lived OSS credentials for direct client uploads.
type STSIssuer struct {
	cfg *config.Config
}

func NewSTSIssuer(cfg *config.Config) *STSIssuer {
	return &STSIssuer{cfg: cfg}
}

func (i *STSIssuer) Enabled() bool {
	return i.cfg.OSSEnabled() && i.cfg.OSSRoleArn != ""
}

func (i *STSIssuer) Issue() (*STSCredentials, error) {
	if !i.Enabled() {
		return nil, ErrSTSNotConfigured
	}

	// STS wants "cn-beijing", not "oss-cn-beijing".
	stsRegion := i.cfg.OSSRegion
	if after, ok := strings.CutPrefix(stsRegion, "oss-"); ok {
		stsRegion = after
	}

	client, err := sts.NewClientWithAccessKey(stsRegion, i.cfg.OSSAccessKeyID, i.cfg.OSSAccessKeySecret)
	if err != nil {
		return nil, err
	}

	request := sts.CreateAssumeRoleRequest()
	request.Scheme = "https"
	request.RoleArn = i.cfg.OSSRoleArn
	request.RoleSessionName = "modelhub-upload"
	request.DurationSeconds = "3600"

	response, err := client.AssumeRole(request)
	if err != nil {
		return nil, err
	}

	return &STSCredentials{
		AccessKeyId:     response.Credentials.AccessKeyId,
		AccessKeySecret: response.Credentials.AccessKeySecret,
		SecurityToken:   response.Credentials.SecurityToken,
		Expiration:      response.Credentials.Expiration,
		Region:          i.cfg.OSSRegion,
		Bucket:          i.cfg.OSSBucketName,
	}, nil
}
