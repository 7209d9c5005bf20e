package transformations

import "context"

func actorCompanyID(ctx context.Context, env Env) (any, error) {
	if env.Actor.CompanyID == 0 {
		return nil, nil
	}
	return env.Actor.CompanyID, nil
}

func actorLogin(ctx context.Context, env Env) (any, error) {
	if env.Actor.Login == "" {
		return nil, nil
	}
	return env.Actor.Login, nil
}

