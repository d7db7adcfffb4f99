package worker

import (
	"context"
	"errors"
	"fmt"

	"modelhub-backend/internal/models"
	"modelhub-backend/internal/services"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const defaultEndpointBase = "/api/v1/inference"

func loadModel(ctx context.Context, deps Deps, e *Execution) (*models.Model, error) {
	modelID := e.StringArg(0, "model_id", "")
	if modelID == "" {
		return nil, fmt.Errorf("model_id is required: %w", asynq.SkipRetry)
	}
	model, err := deps.Models.Get(ctx, modelID)
	if errors.Is(err, services.ErrModelNotFound) {
		return nil, fmt.Errorf("model %s: %v: %w", modelID, err, asynq.SkipRetry)
	}
	return model, err
}

// validateModel checks the parameter contract and the stored artifact, then
// marks the model valid or invalid. An invalid model is a successful run.
func validateModel(deps Deps) HandlerFunc {
	return func(ctx context.Context, e *Execution) (interface{}, error) {
		model, err := loadModel(ctx, deps, e)
		if err != nil {
			return nil, err
		}
		if err := deps.Models.SetStatus(ctx, model.ID, models.ModelStatusValidating, nil); err != nil {
			return nil, err
		}
		e.UpdateProgress(10, map[string]interface{}{"message": fmt.Sprintf("validating model %s", model.Name)})

		var problems []string
		checks := map[string]bool{}

		_, paramErr := models.DecodeModelParameters(model.Parameters)
		if len(model.Parameters) == 0 {
			paramErr = errors.New("parameters are not defined")
		}
		checks["parameters"] = paramErr == nil
		if paramErr != nil {
			problems = append(problems, paramErr.Error())
		}
		e.UpdateProgress(50, map[string]interface{}{"message": "checked parameters"})

		artifactOK := false
		if model.FilePath == "" {
			problems = append(problems, "no artifact uploaded")
		} else {
			exists, err := deps.Models.Storage().Exists(ctx, model.FilePath)
			if err != nil {
				return nil, fmt.Errorf("check artifact: %w", err)
			}
			artifactOK = exists
			if !exists {
				problems = append(problems, "artifact missing from storage")
			}
		}
		checks["artifact"] = artifactOK
		e.UpdateProgress(80, map[string]interface{}{"message": "checked artifact"})

		status := models.ModelStatusValid
		if len(problems) > 0 {
			status = models.ModelStatusInvalid
		}
		if err := deps.Models.SetStatus(ctx, model.ID, status, nil); err != nil {
			return nil, err
		}
		e.log.Info("model validated", zap.String("model_id", model.ID), zap.String("status", string(status)))

		if problems == nil {
			problems = []string{}
		}
		return map[string]interface{}{
			"model_id":          model.ID,
			"success":           status == models.ModelStatusValid,
			"status":            status,
			"checks":            checks,
			"errors":            problems,
			"validation_config": e.MapArg(1, "validation_config"),
		}, nil
	}
}

// deployModel moves a deployable model through deploying to deployed and
// publishes its endpoint. On failure the previous status is restored.
func deployModel(deps Deps) HandlerFunc {
	return func(ctx context.Context, e *Execution) (interface{}, error) {
		model, err := loadModel(ctx, deps, e)
		if err != nil {
			return nil, err
		}
		if !model.Status.Deployable() {
			return nil, fmt.Errorf("model %s is %s: %w", model.ID, model.Status, asynq.SkipRetry)
		}
		previous := model.Status
		config := e.MapArg(1, "deployment_config")

		if err := deps.Models.SetStatus(ctx, model.ID, models.ModelStatusDeploying, nil); err != nil {
			return nil, err
		}
		e.UpdateProgress(10, map[string]interface{}{"message": fmt.Sprintf("deploying model %s", model.Name)})

		fail := func(cause error) (interface{}, error) {
			if err := deps.Models.SetStatus(context.WithoutCancel(ctx), model.ID, previous, nil); err != nil {
				e.log.Warn("restore model status failed", zap.Error(err))
			}
			return nil, cause
		}

		if model.FilePath == "" {
			return fail(fmt.Errorf("model %s has no artifact: %w", model.ID, asynq.SkipRetry))
		}
		exists, err := deps.Models.Storage().Exists(ctx, model.FilePath)
		if err != nil {
			return fail(fmt.Errorf("check artifact: %w", err))
		}
		if !exists {
			return fail(fmt.Errorf("artifact %s missing: %w", model.FilePath, asynq.SkipRetry))
		}
		e.UpdateProgress(50, map[string]interface{}{"message": "artifact verified"})

		base, _ := config["endpoint_base"].(string)
		if base == "" {
			base = defaultEndpointBase
		}
		endpoint := fmt.Sprintf("%s/%s", base, model.ID)
		if err := deps.Models.SetStatus(ctx, model.ID, models.ModelStatusDeployed, map[string]interface{}{"endpoint_url": endpoint}); err != nil {
			return fail(err)
		}
		e.UpdateProgress(90, map[string]interface{}{"message": "endpoint registered", "endpoint_url": endpoint})
		e.log.Info("model deployed", zap.String("model_id", model.ID), zap.String("endpoint", endpoint))

		return map[string]interface{}{
			"model_id":          model.ID,
			"success":           true,
			"endpoint_url":      endpoint,
			"deployment_config": config,
		}, nil
	}
}
