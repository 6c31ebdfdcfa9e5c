/*
Package authsdk is the client side of the authcore service.

# Overview

The package is organized around three types:

  - SDKClient: stateless calls to the public endpoints (login, register, refresh, verify)
  - Manager: owns the current session token, restores it from storage and refreshes it
  - Executor: sends authenticated requests through a Manager with refresh and retry

Create them once at the root of your application and pass them down:

	client := authsdk.NewSDKClient("https://auth.example.com")
	storage := sessionx.NewFileStorage(filepath.Join(configDir, "session.json"))

	manager := authsdk.NewManager(client, storage, authsdk.ManagerConfig{
		AutoRefreshInterval: 5 * time.Minute,
	})
	defer manager.Dispose()

	if err := manager.Initialize(ctx); err != nil {
		return err
	}

	executor := authsdk.NewExecutor(manager, authsdk.ExecutorConfig{})

# Signing In

	resp, err := client.Login(ctx, email, password)
	if errors.Is(err, authsdk.ErrInvalidCredentials) {
		fmt.Println(authsdk.Message(err))
		return
	}
	if err := manager.SetAuth(resp.User, resp.Token); err != nil {
		return err
	}

# Token Refresh

Manager.NeedsRefresh reports true once the token is within RefreshThreshold (one hour by
default) of expiry. Manager.RefreshToken is single-flight: any number of goroutines may
call it at once and exactly one POST /auth/refresh is sent; all callers receive the same
token or the same error.

A failed refresh keeps the stale token so the caller can try again. Outages (network
errors, 5xx, 408, 429) never end the session. Once the server has rejected
MaxRefreshFailures consecutive refreshes (three by default) with 401 or 403, the Manager
signs out and the error matches ErrUnauthorized as well as ErrRefreshFailed.

# Authenticated Requests

	profile, err := authsdk.Execute[authsdk.UserProfile](ctx, executor, authsdk.Request{
		Method: http.MethodGet,
		URL:    "https://auth.example.com/users/42",
	})

For each attempt the Executor:

 1. Refreshes first when there is no token or it is close to expiry
 2. Sends the request with an Authorization: Bearer header
 3. On 401 or 403, refreshes once and resends; a second rejection is ErrUnauthorized
 4. Retries network errors, 5xx, 408 and 429 with exponential backoff, up to MaxAttempts

Set Request.FallbackMode to receive a *FallbackError (matching ErrAuthFallbackMode)
carrying the cached user when the session cannot be restored, instead of ErrUnauthorized.
The caller can keep rendering that user in a degraded state while it prompts for sign-in.

# Error Handling

Errors wrap the sentinels in errors.go and are matched with errors.Is. Non-2xx replies are
*RequestError values carrying the status code. Classify maps any error onto a Kind and
Message turns it into a sentence for end users:

	if _, err := executor.Do(ctx, req); err != nil {
		switch authsdk.Classify(err) {
		case authsdk.KindUnauthorized:
			showLogin()
		case authsdk.KindFallback:
			showDegraded()
		default:
			showToast(authsdk.Message(err))
		}
	}

# Thread Safety

SDKClient, Manager and Executor are safe for concurrent use.
*/
package authsdk
